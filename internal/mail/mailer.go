// Package mail はパスワードリセット等の通知メール送信を提供する。
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// Mailer は通知メール送信のインターフェース。
// 送信はベストエフォートであり、失敗しても呼び出し元の状態は変更しない。
type Mailer interface {
	// SendPasswordReset はリセットリンクを含むメールを送信する。
	SendPasswordReset(ctx context.Context, to, resetLink string) error
	// Configured は実際にメールを配送できる設定があるかどうかを返す。
	Configured() bool
}

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host      string
	Port      int
	User      string
	Pass      string
	From      string
	Secure    bool   // trueの場合は接続時からTLS（SMTPS）を使う
	AppName   string // 件名・本文に表示するサービス名
	ExpiresIn string // 本文に表示する有効期限（例: "1 hour"）
}

// SMTPMailer はgomailを使用したSMTP送信の実装。
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(m *gomail.Message) error
}

// NewSMTPMailer はSMTPMailerを生成する。
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)
	d.SSL = cfg.Secure
	d.TLSConfig = &tls.Config{ServerName: cfg.Host}
	return &SMTPMailer{
		cfg:  cfg,
		send: func(m *gomail.Message) error { return d.DialAndSend(m) },
	}
}

// Configured はホストと送信元が設定されている場合にtrueを返す。
func (s *SMTPMailer) Configured() bool {
	return s.cfg.Host != "" && s.cfg.From != ""
}

// SendPasswordReset はリセットリンクを含むメールを送信する。
func (s *SMTPMailer) SendPasswordReset(ctx context.Context, to, resetLink string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	email := BuildPasswordResetEmail(PasswordResetEmailData{
		AppName:   s.cfg.AppName,
		ResetLink: resetLink,
		ExpiresIn: s.cfg.ExpiresIn,
	})

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", email.Subject)
	m.SetBody("text/plain", email.TextBody)
	m.AddAlternative("text/html", email.HTMLBody)

	if err := s.send(m); err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}

	slog.Info("password reset email sent", slog.String("to", to))
	return nil
}

// NoopMailer はSMTP未設定時に使う送信しない実装。
type NoopMailer struct{}

// Configured は常にfalseを返す。
func (NoopMailer) Configured() bool { return false }

// SendPasswordReset は送信せずに警告ログのみ出力する。
func (NoopMailer) SendPasswordReset(_ context.Context, to, _ string) error {
	slog.Warn("mail is not configured, password reset email skipped", slog.String("to", to))
	return nil
}

// compile-time interface checks
var (
	_ Mailer = (*SMTPMailer)(nil)
	_ Mailer = NoopMailer{}
)
