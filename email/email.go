package email

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"github.com/kaanmetep/deepintodev/db"
	"github.com/kaanmetep/deepintodev/util"
)

// Config stores variables needed to submit verification emails for
// sending, as well as to generate the links they carry.
type Config struct {
	auth               smtp.Auth
	username           string
	password           string
	submissionHostname string
	port               string
	sender             string
	baseURL            string // public base URL embedded in verification links
	linkTTL            time.Duration
	database           db.SuppressionStore
}

// MakeConfigFromEnv initializes our email config object with environment
// variables, and establishes the auth handshake with the SMTP server.
// linkTTL is how long the emailed link stays valid; the email body tells
// the recipient.
func MakeConfigFromEnv(database db.SuppressionStore, linkTTL time.Duration) (Config, error) {
	varErrs := util.Errors{}
	c := Config{
		username:           util.RequireEnv("SMTP_USERNAME", &varErrs),
		password:           util.RequireEnv("SMTP_PASSWORD", &varErrs),
		submissionHostname: util.RequireEnv("SMTP_ENDPOINT", &varErrs),
		port:               util.RequireEnv("SMTP_PORT", &varErrs),
		sender:             util.RequireEnv("SMTP_FROM_ADDRESS", &varErrs),
		baseURL:            util.RequireEnv("BASE_URL", &varErrs),
		linkTTL:            linkTTL,
		database:           database,
	}
	if len(varErrs) > 0 {
		return c, varErrs
	}
	log.Printf("Establishing auth connection with SMTP server %s", c.submissionHostname)
	client, err := smtp.Dial(fmt.Sprintf("%s:%s", c.submissionHostname, c.port))
	if err != nil {
		return c, err
	}
	defer client.Close()
	err = client.StartTLS(&tls.Config{ServerName: c.submissionHostname})
	if err != nil {
		return c, fmt.Errorf("SMTP server doesn't support STARTTLS")
	}
	ok, auths := client.Extension("AUTH")
	if !ok {
		return c, fmt.Errorf("remote SMTP server doesn't support any authentication mechanisms")
	}
	if strings.Contains(auths, "PLAIN") {
		c.auth = smtp.PlainAuth("", c.username, c.password, c.submissionHostname)
	} else if strings.Contains(auths, "CRAM-MD5") {
		c.auth = smtp.CRAMMD5Auth(c.username, c.password)
	} else {
		return c, fmt.Errorf("SMTP server doesn't support PLAIN or CRAM-MD5 authentication")
	}
	return c, nil
}

// VerificationLink returns the URL a recipient visits to redeem token.
func (c Config) VerificationLink(token string) string {
	return fmt.Sprintf("%s/api/verify?token=%s",
		strings.TrimSuffix(c.baseURL, "/"), url.QueryEscape(token))
}

// SendVerification sends the double opt-in email for address, containing
// a link that embeds token.
func (c Config) SendVerification(ctx context.Context, address string, token string) error {
	emailContent := verificationEmailText(c.VerificationLink(token), int(c.linkTTL.Minutes()))
	return c.sendEmail(ctx, verificationEmailSubject, emailContent, address)
}

func (c Config) sendEmail(ctx context.Context, subject string, body string, address string) error {
	suppressed, err := c.database.IsSuppressedEmail(ctx, address)
	if err != nil {
		return err
	}
	if suppressed {
		return fmt.Errorf("address %s is suppressed", address)
	}
	message := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n"+
		"MIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		c.sender, address, subject, body)
	if c.submissionHostname == "" {
		log.Println("Warning: email host not configured, not sending email")
		log.Println(message)
		return nil
	}
	return smtp.SendMail(fmt.Sprintf("%s:%s", c.submissionHostname, c.port),
		c.auth,
		c.sender, []string{address}, []byte(message))
}

// Recipients lists the email addresses that have triggered a bounce or complaint.
type Recipients []struct {
	EmailAddress string `json:"emailAddress"`
}

// SuppressionRequest represents a notification that a particular address
// bounced or complained and should stop receiving mail.
type SuppressionRequest struct {
	Reason     string
	Timestamp  string
	Recipients Recipients
	Raw        string
}

// UnmarshalJSON wrangles the JSON posted by AWS SNS into something easier to access
// and generalized across notification types.
func (r *SuppressionRequest) UnmarshalJSON(b []byte) error {
	// We need to start by unmarshalling Message into a string because the field contains stringified JSON.
	// See email_test.go for examples.
	var wrapper struct {
		Message   string
		Timestamp string
	}
	if err := json.Unmarshal(b, &wrapper); err != nil {
		return fmt.Errorf("failed to load notification wrapper: %v", err)
	}

	type Complaint struct {
		*Recipients `json:"complainedRecipients"`
	}

	type Bounce struct {
		*Recipients `json:"bouncedRecipients"`
	}

	// We'll unmarshall the list of bounced or complained emails into
	// &recipients. Only one of Complaint or Bounce will contain data, so we
	// can reuse &recipients to capture whichever field holds the list.
	var recipients Recipients
	msg := struct {
		NotificationType string `json:"notificationType"`
		Complaint        `json:"complaint"`
		Bounce           `json:"bounce"`
	}{
		Complaint: Complaint{Recipients: &recipients},
		Bounce:    Bounce{Recipients: &recipients},
	}

	if err := json.Unmarshal([]byte(wrapper.Message), &msg); err != nil {
		return fmt.Errorf("failed to load notification message: %v", err)
	}

	*r = SuppressionRequest{
		Raw:        wrapper.Message,
		Timestamp:  wrapper.Timestamp,
		Reason:     msg.NotificationType,
		Recipients: recipients,
	}
	return nil
}
