package mail

import (
	"bytes"
	"fmt"
	"html/template"
)

// Email は送信するメールの件名と本文。
type Email struct {
	Subject  string
	TextBody string
	HTMLBody string
}

// PasswordResetEmailData はリセットメールのテンプレートデータ。
type PasswordResetEmailData struct {
	AppName   string
	ResetLink string
	ExpiresIn string
}

// BuildPasswordResetEmail はテキストとHTMLの両方の本文を持つリセットメールを生成する。
func BuildPasswordResetEmail(data PasswordResetEmailData) Email {
	if data.AppName == "" {
		data.AppName = "PlayNet"
	}
	if data.ExpiresIn == "" {
		data.ExpiresIn = "1 hour"
	}
	return Email{
		Subject:  fmt.Sprintf("Reset your %s password", data.AppName),
		TextBody: buildPasswordResetText(data),
		HTMLBody: buildPasswordResetHTML(data),
	}
}

func buildPasswordResetText(data PasswordResetEmailData) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "We received a request to reset your %s password.\n\n", data.AppName)
	buf.WriteString("Open this link to choose a new password:\n")
	buf.WriteString(data.ResetLink + "\n\n")
	fmt.Fprintf(&buf, "This link expires in %s.\n\n", data.ExpiresIn)
	buf.WriteString("If you did not request a password reset, you can safely ignore this email.\n")
	return buf.String()
}

var passwordResetHTML = template.Must(template.New("password_reset").Parse(passwordResetHTMLTemplate))

func buildPasswordResetHTML(data PasswordResetEmailData) string {
	var buf bytes.Buffer
	_ = passwordResetHTML.Execute(&buf, data)
	return buf.String()
}

const passwordResetHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Reset your password</title>
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; background-color: #f3f4f6;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="background-color: #f3f4f6;">
    <tr>
      <td align="center" style="padding: 40px 20px;">
        <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width: 480px; background-color: #ffffff; border-radius: 8px;">
          <tr>
            <td style="padding: 32px 32px 24px; text-align: center; border-bottom: 1px solid #e5e7eb;">
              <h1 style="margin: 0; font-size: 24px; font-weight: 600; color: #16a34a;">{{.AppName}}</h1>
            </td>
          </tr>
          <tr>
            <td style="padding: 32px;">
              <p style="margin: 0 0 24px; font-size: 16px; color: #374151; line-height: 1.5;">
                We received a request to reset your password. Click the button below to choose a new one.
              </p>
              <div style="text-align: center; margin-bottom: 24px;">
                <a href="{{.ResetLink}}" style="display: inline-block; padding: 12px 32px; background-color: #16a34a; color: #ffffff; text-decoration: none; font-size: 16px; font-weight: 500; border-radius: 6px;">Reset password</a>
              </div>
              <p style="margin: 0; font-size: 14px; color: #6b7280; text-align: center;">
                This link expires in {{.ExpiresIn}}.
              </p>
            </td>
          </tr>
          <tr>
            <td style="padding: 24px 32px; background-color: #f9fafb; border-top: 1px solid #e5e7eb; border-radius: 0 0 8px 8px;">
              <p style="margin: 0; font-size: 12px; color: #9ca3af; text-align: center;">
                If you did not request a password reset, you can safely ignore this email.
              </p>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>
`
