package guard

// Decision is the outcome of a path check. Redirect is empty when the path
// may be rendered.
type Decision struct {
	Redirect string
	Reason   string
}

// Allowed reports whether the path may be rendered as is.
func (d Decision) Allowed() bool { return d.Redirect == "" }

const (
	ReasonAllowed      = "allowed"
	ReasonAnonymous    = "anonymous"
	ReasonPublicRoute  = "public_route"
	ReasonStrictMatch  = "strict_dashboard_match"
	ReasonInsufficient = "insufficient_level"
)

// Policy decides which paths a session may visit. It is immutable and safe
// for concurrent use.
type Policy struct {
	rules      []Rule
	dashboards map[int]string
	exact      map[string]int
	public     map[string]struct{}
	loginPath  string
}

// NewPolicy derives a Policy from cfg.
func NewPolicy(cfg Config) *Policy {
	p := &Policy{
		rules:      BuildAuthorizationMap(cfg.DashboardPaths),
		dashboards: make(map[int]string, len(cfg.DashboardPaths)),
		exact:      make(map[string]int, len(cfg.DashboardPaths)),
		public:     make(map[string]struct{}, len(cfg.PublicRoutes)),
		loginPath:  NormalizePath(cfg.LoginPath),
	}
	for _, r := range p.rules {
		p.dashboards[r.RequiredLevel] = r.PathPrefix
		p.exact[r.PathPrefix] = r.RequiredLevel
	}
	for _, route := range cfg.PublicRoutes {
		p.public[NormalizePath(route)] = struct{}{}
	}
	return p
}

// Rules returns a copy of the derived authorization rules.
func (p *Policy) Rules() []Rule {
	return append([]Rule(nil), p.rules...)
}

// LoginPath is where anonymous visitors are sent.
func (p *Policy) LoginPath() string { return p.loginPath }

// DashboardFor returns the dashboard of level, falling back to the level-1
// dashboard and then to "/".
func (p *Policy) DashboardFor(level int) string {
	if path, ok := p.dashboards[level]; ok {
		return path
	}
	if path, ok := p.dashboards[1]; ok {
		return path
	}
	return "/"
}

// IsPublic reports whether path is reachable without a session.
func (p *Policy) IsPublic(path string) bool {
	_, ok := p.public[NormalizePath(path)]
	return ok
}

// Decide applies the routing rules for sess on path:
//
//  1. anonymous visitors on a non-public path go to the login page
//  2. authenticated users on a public path go to their own dashboard
//  3. an exact dashboard path of another level sends the user to their own
//  4. the first matching prefix rule must not require more than the user has
func (p *Policy) Decide(sess Session, path string) Decision {
	path = NormalizePath(path)

	user, ok := sess.(Authenticated)
	if !ok {
		if path == p.loginPath || p.IsPublic(path) {
			return Decision{Reason: ReasonAllowed}
		}
		return Decision{Redirect: p.loginPath, Reason: ReasonAnonymous}
	}

	level := user.User.AccessLevel
	own := p.DashboardFor(level)
	redirect := func(reason string) Decision {
		if own == path {
			return Decision{Reason: ReasonAllowed}
		}
		return Decision{Redirect: own, Reason: reason}
	}

	if p.IsPublic(path) || path == p.loginPath {
		return redirect(ReasonPublicRoute)
	}
	if owner, ok := p.exact[path]; ok && owner != level {
		return redirect(ReasonStrictMatch)
	}
	for _, r := range p.rules {
		if hasPathPrefix(path, r.PathPrefix) {
			if level < r.RequiredLevel {
				return redirect(ReasonInsufficient)
			}
			break
		}
	}
	return Decision{Reason: ReasonAllowed}
}
