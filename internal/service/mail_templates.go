package service

import "fmt"

func digitCodeMailBody(firstName, digitCode string) string {
	return fmt.Sprintf(`
    <div style="font-family: Helvetica,Arial,sans-serif;min-width:1000px;overflow:auto;line-height:2">
        <div style="margin:50px auto;width:70%%;padding:20px 0">
            <div style="border-bottom:1px solid #eee">
            <a href="" style="font-size:1.4em;color: #00466a;text-decoration:none;font-weight:600">APP</a>
            </div>
            <p style="font-size:1.1em">Hi %s,</p>
            <p>Use the following OTP to complete your Sign Up procedures. OTP is valid for 3 minutes</p>
            <h2 style="background: #00466a;margin: 0 auto;width: max-content;padding: 0 10px;color: #fff;border-radius: 4px;">%s</h2>
            <hr style="border:none;border-top:1px solid #eee" />
            <div style="float:right;padding:8px 0;color:#aaa;font-size:0.8em;line-height:1;font-weight:300">
            <p>App</p>
            </div>
        </div>
        </div>
    `, firstName, digitCode)
}

func inviteMailBody(inviteLink string) string {
	return fmt.Sprintf(`
    <div style="font-family: Helvetica,Arial,sans-serif;min-width:1000px;overflow:auto;line-height:2">
        <div style="margin:50px auto;width:70%%;padding:20px 0">
            <div style="border-bottom:1px solid #eee">
            <a href="" style="font-size:1.4em;color: #00466a;text-decoration:none;font-weight:600">APP</a>
            </div>
            <p style="font-size:1.1em">Hi,</p>
            <p>You have been invited to join our platform</p>
            <p>Click on the link below to register:</p>
            <h2 style="background: #00466a;margin: 0 auto;width: max-content;padding: 0 10px;color: #fff;border-radius: 4px;"><a href=%s>%s</a></h2>
            <hr style="border:none;border-top:1px solid #eee" />
            <div style="float:right;padding:8px 0;color:#aaa;font-size:0.8em;line-height:1;font-weight:300">
            <p>Best regards,</p>
            <p>App Team</p>
            </div>
        </div>
        </div>
    `, inviteLink, inviteLink)
}
