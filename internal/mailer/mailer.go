// Package mailer sends transactional notification mail over plain
// authenticated SMTP.
package mailer

import (
	"fmt"
	"log"
	"net/smtp"
)

type Mailer struct {
	host     string
	port     string
	from     string
	username string
	password string
}

// New returns a configured mailer, or nil when host is empty — callers
// treat a nil *Mailer as "mail disabled" and skip sending.
func New(host, port, from, username, password string) *Mailer {
	if host == "" {
		return nil
	}
	return &Mailer{
		host:     host,
		port:     port,
		from:     from,
		username: username,
		password: password,
	}
}

// OfferCreated tells an order's owner that someone responded to it.
func (m *Mailer) OfferCreated(recipient, offerer, orderName string) error {
	if m == nil {
		log.Printf("mail disabled, skipping offer notice to %s", recipient)
		return nil
	}

	body := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: Someone responded to your order\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s responded to your order: %s\r\n",
		m.from, recipient, offerer, orderName,
	)
	auth := smtp.PlainAuth("", m.username, m.password, m.host)
	return smtp.SendMail(m.host+":"+m.port, auth, m.from, []string{recipient}, []byte(body))
}
