package mailer

import (
	"fmt"
	"html/template"
	"strings"
)

const verificationSubject = "Verify your email"

var verificationTmpl = template.Must(template.New("verification").Parse(`<html>
  <body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
    <table align="center" width="600" style="background: #fff; border-radius: 10px; padding: 20px; text-align: center; box-shadow: 0 2px 8px rgba(0,0,0,0.1);">
      <tr>
        <td>
          <h2 style="color: #4CAF50;">Welcome, {{.Name}}</h2>
          <p style="font-size: 16px; color: #333;">
            Thank you for signing up. Please verify your email by clicking the button below:
          </p>
          <a href="{{.Link}}"
             style="display: inline-block; margin: 20px 0; padding: 12px 25px; background: #4CAF50; color: #fff; text-decoration: none; border-radius: 5px; font-size: 16px;">
            Verify Email
          </a>
          <p style="font-size: 14px; color: #888;">
            If the button doesn't work, copy and paste this link in your browser:
            <br/>
            <a href="{{.Link}}">{{.Link}}</a>
          </p>
        </td>
      </tr>
    </table>
  </body>
</html>`))

// VerificationEmail renders the email-ownership verification message.
// baseURL is the frontend origin; the token rides in the link path.
func VerificationEmail(baseURL, name, token string) (subject, html string, err error) {
	link := strings.TrimRight(baseURL, "/") + "/verify-email/" + token

	var b strings.Builder
	if err := verificationTmpl.Execute(&b, struct {
		Name string
		Link string
	}{Name: name, Link: link}); err != nil {
		return "", "", fmt.Errorf("failed to render verification email: %w", err)
	}
	return verificationSubject, b.String(), nil
}
