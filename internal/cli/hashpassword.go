package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	levelAuth "github.com/MrEthical07/levelAuth"
	"github.com/MrEthical07/levelAuth/internal/validate"
	"github.com/MrEthical07/levelAuth/password"
	"github.com/spf13/cobra"
)

func newHashPasswordCommand() *cobra.Command {
	var (
		memory uint32
		iters  uint32
		skip   bool
	)
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Produce an argon2id hash for seeding accounts",
		Long: `Hash a password with the same argon2id parameters the server uses.

The password is taken from the first argument or, when absent, from the first
line of standard input.

Examples:
  levelauth hash-password 'correct horse battery'
  echo 'correct horse battery' | levelauth hash-password`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if !skip {
				if msg := validate.Password(pw); msg != "" {
					return errors.New(msg)
				}
			}

			cfg := levelAuth.DefaultConfig().Password
			if memory > 0 {
				cfg.Memory = memory
			}
			if iters > 0 {
				cfg.Time = iters
			}
			hasher, err := hasherFor(cfg)
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(pw)
			if err != nil {
				return fmt.Errorf("hashing password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&memory, "memory", 0, "argon2 memory in KB (default from engine config)")
	cmd.Flags().Uint32Var(&iters, "time", 0, "argon2 iterations (default from engine config)")
	cmd.Flags().BoolVar(&skip, "skip-policy", false, "hash even when the password fails the length policy")
	return cmd
}

func readPassword(in io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password given")
	}
	return line, nil
}

func hasherFor(cfg levelAuth.PasswordConfig) (*password.Argon2, error) {
	return password.NewArgon2(password.Config{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	})
}
