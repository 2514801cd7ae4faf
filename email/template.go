package email

import "fmt"

const verificationEmailSubject = "DeepIntoDev Newsletter - Email Verification"

// %[1]s is the verification link, %[2]d the link lifetime in minutes.
const verificationEmailTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Verify Your Subscription</title>
</head>
<body style="font-family: Arial, sans-serif; background-color: #f4f4f4; margin: 0; padding: 20px; text-align: center;">
    <table role="presentation" width="100%%" cellspacing="0" cellpadding="0" border="0">
        <tr>
            <td align="center">
                <table role="presentation" width="600" cellspacing="0" cellpadding="0" border="0" style="background-color: #fff; padding: 30px; border-radius: 6px; box-shadow: 0px 2px 4px rgba(0,0,0,0.1); text-align: left; max-width: 100%%;">
                    <tr>
                        <td style="font-size: 18px; font-weight: bold; color: #000;">DeepIntoDev Newsletter</td>
                    </tr>
                    <tr>
                        <td style="font-size: 16px; color: #333; padding: 20px 0;">
                            To verify your subscription, click the button below:
                        </td>
                    </tr>
                    <tr>
                        <td align="center">
                            <a href="%[1]s" style="background-color: #000; color: white !important; padding: 12px 24px; text-decoration: none; font-size: 16px; border-radius: 4px; display: inline-block; margin: 10px 0; border: 2px solid #000; font-weight: bold;">Verify Email</a>
                        </td>
                    </tr>
                    <tr>
                        <td align="center" style="padding-top: 10px;">
                            <p style="font-size: 14px; color: #666;">
                                If you can't see the button above, <a href="%[1]s" style="color: #0066cc; text-decoration: underline; font-weight: bold;">click here to verify your email</a>.
                            </p>
                        </td>
                    </tr>
                    <tr>
                        <td style="color: #666; font-size: 14px; padding-top: 20px;">Link expires in %[2]d minutes.</td>
                    </tr>
                    <tr>
                        <td style="color: #666; font-size: 14px; padding-top: 10px;">
                            Every ~one week, you'll get something good to read after completing your subscription.
                        </td>
                    </tr>
                </table>
            </td>
        </tr>
    </table>
</body>
</html>`

func verificationEmailText(link string, ttlMinutes int) string {
	return fmt.Sprintf(verificationEmailTemplate, link, ttlMinutes)
}
