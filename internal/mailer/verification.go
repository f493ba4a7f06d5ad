package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
)

// VerificationSubject is the subject line of verification mail.
const VerificationSubject = "Verify your email address"

var verificationTmpl = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html dir="ltr" lang="en">
  <head>
    <meta content="text/html; charset=UTF-8" http-equiv="Content-Type" />
  </head>
  <body style="background-color:#f6f9fc;font-family:'Helvetica Neue',Helvetica,Arial,sans-serif">
    <table align="center" width="100%" role="presentation" style="max-width:37.5em;background-color:#ffffff;border:1px solid #f0f0f0;padding:45px">
      <tr>
        <td>
          <p style="font-size:16px;line-height:26px;color:#404040">Hi {{.Name}},</p>
          <p style="font-size:16px;line-height:26px;color:#404040">
            Thanks for signing up to <b>{{.AppName}}</b>! Please confirm your email address by clicking the button below:
          </p>
          <a href="{{.Link}}" target="_blank" style="display:block;width:210px;padding:14px 7px;background-color:#2563eb;border-radius:4px;color:#fff;text-align:center;text-decoration:none">
            Verify Email
          </a>
          <p style="font-size:16px;line-height:26px;color:#404040">
            If you did not create an account, you can safely ignore this message.
          </p>
          <p style="font-size:16px;line-height:26px;color:#404040">Cheers,<br />The {{.AppName}} Team</p>
        </td>
      </tr>
    </table>
  </body>
</html>
`))

// VerificationLink builds "<baseURL>/auth/verify?token=<token>".
func VerificationLink(baseURL, token string) string {
	return baseURL + "/auth/verify?token=" + url.QueryEscape(token)
}

// NewVerificationMessage renders the verification mail for one recipient.
func NewVerificationMessage(appName, to, name, link string) (Message, error) {
	var buf bytes.Buffer
	err := verificationTmpl.Execute(&buf, struct {
		AppName string
		Name    string
		Link    string
	}{AppName: appName, Name: name, Link: link})
	if err != nil {
		return Message{}, fmt.Errorf("render verification mail: %w", err)
	}
	return Message{To: to, Subject: VerificationSubject, HTML: buf.String()}, nil
}
