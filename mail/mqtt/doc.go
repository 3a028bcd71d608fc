// Package mqtt delivers levelAuth mail by publishing jobs to an MQTT broker.
//
// The engine never talks SMTP itself. Each MailMessage becomes a JSON job on
// <topic prefix>/<kind>, for example levelauth/mail/verification, and a separate
// mail worker subscribed to the prefix renders and sends it.
package mqtt
