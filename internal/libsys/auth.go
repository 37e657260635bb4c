package libsys

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
)

const (
	markerBadCredentials     = "用户名或密码错误"
	markerBadCaptcha         = "验证码"
	markerIdentityPending    = "未完成身份认证"
	markerIdentityMismatch   = "身份验证失败"
	markerPasswordChanged    = "密码修改成功"
	identityRedirectBasename = "redr_con.php"
)

var scaRegex = regexp.MustCompile(`setAttribute\("value",\s*"([^"]*)"\);`)

func (c *Client) reportTransition(from, to State) {
	c.tel.ReportDebug("session transition", from.String(), to.String())
}

// IssueChallenge starts a login attempt: it collects the csrf token, the
// scramble alphabet and a captcha, all bound to the cookies of a new session.
func (c *Client) IssueChallenge(ctx context.Context) Result[Challenge] {
	return run(ctx, c, opChallenge, func(ctx context.Context) (Result[Challenge], error) {
		ex, err := c.newExchange(NewSession(), true)
		if err != nil {
			return Result[Challenge]{}, err
		}

		doc, err := ex.getDocument(ctx, pathLogin, nil)
		if err != nil {
			return Result[Challenge]{}, err
		}
		csrfToken, ok := doc.Find("input[name='csrf_token']").Attr("value")
		if !ok {
			return Result[Challenge]{}, malformed("login page has no csrf_token")
		}

		res, err := ex.get(ctx, pathScramble, nil)
		if err != nil {
			return Result[Challenge]{}, err
		}
		script, err := bodyText(res)
		if err != nil {
			return Result[Challenge]{}, err
		}
		groups := scaRegex.FindStringSubmatch(script)
		if len(groups) < 2 {
			return Result[Challenge]{}, malformed("scramble alphabet not found")
		}
		sca := groups[1]
		err = ValidateSca(sca)
		if err != nil {
			return Result[Challenge]{}, fmt.Errorf("%w: %w", errMalformed, err)
		}

		res, err = ex.get(ctx, pathCaptcha, nil)
		if err != nil {
			return Result[Challenge]{}, err
		}
		image := res.Body()
		contentType := res.Header().Get("Content-Type")
		if contentType == "" {
			contentType = http.DetectContentType(image)
		}

		session := NewSession().with(StateCaptchaIssued, ex.cookies())
		session.CsrfToken = csrfToken
		session.Sca = sca
		c.reportTransition(StateUnauthenticated, StateCaptchaIssued)

		return succeed(CodeChallengeIssued, "获取验证码成功", Challenge{
			Session:      session,
			CaptchaImage: image,
			CaptchaType:  contentType,
		}), nil
	})
}

func isIdentityRedirect(location string) bool {
	if location == "" {
		return false
	}
	parsed, err := url.Parse(location)
	if err != nil {
		return strings.HasSuffix(location, identityRedirectBasename)
	}
	return path.Base(parsed.Path) == identityRedirectBasename
}

// challengeKey identifies a challenge by its csrf token within the cookies it
// was issued to.
func challengeKey(session Session) string {
	names := make([]string, 0, len(session.Cookies))
	for name := range session.Cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	var key strings.Builder
	key.WriteString(session.CsrfToken)
	for _, name := range names {
		fmt.Fprintf(&key, ";%s=%s", name, session.Cookies[name])
	}
	return key.String()
}

// Verify submits the credentials of a login attempt. The session of the
// challenge is single use: whatever the outcome, a further attempt needs a
// new challenge.
func (c *Client) Verify(ctx context.Context, creds Credentials) Result[Session] {
	return run(ctx, c, opVerify, func(ctx context.Context) (Result[Session], error) {
		session := creds.Session
		if session.State != StateCaptchaIssued || session.CsrfToken == "" {
			return Result[Session]{}, fail(CodeUnexpected, "请先获取验证码")
		}
		if creds.AccountNumber == "" || creds.Password == "" || creds.Captcha == "" {
			return Result[Session]{}, fail(CodeUnexpected, "账号、密码和验证码不能为空")
		}
		err := ValidateSca(session.Sca)
		if err != nil {
			return Result[Session]{}, failf(CodeUnexpected, "验证码会话无效：%s", err.Error())
		}
		alreadyUsed, _ := c.consumed.ContainsOrAdd(challengeKey(session), struct{}{})
		if alreadyUsed {
			return Result[Session]{}, fail(CodeUnexpected, "验证码已使用，请重新获取验证码")
		}

		ex, err := c.newExchange(session, false)
		if err != nil {
			return Result[Session]{}, err
		}
		res, err := ex.post(ctx, pathVerify, map[string]string{
			"sca":        session.Sca,
			"number":     creds.AccountNumber,
			"passwd":     EncodePassword(session.Sca, creds.Password),
			"captcha":    creds.Captcha,
			"select":     "cert_no",
			"returnUrl":  "",
			"csrf_token": session.CsrfToken,
		})
		if err != nil {
			return Result[Session]{}, err
		}
		doc, err := parseDocument(res)
		if err != nil {
			return Result[Session]{}, err
		}

		message := text(doc.Find("font#fontMsg[color='red']"))
		switch {
		case message == "":
		case strings.Contains(message, markerBadCredentials):
			c.reportTransition(StateCaptchaIssued, StateUnauthenticated)
			return Result[Session]{}, fail(CodeBadCredentials, "用户名或密码不正确")
		case strings.Contains(message, markerBadCaptcha):
			c.reportTransition(StateCaptchaIssued, StateUnauthenticated)
			return Result[Session]{}, fail(CodeBadCaptcha, "验证码输入错误")
		default:
			c.reportTransition(StateCaptchaIssued, StateUnauthenticated)
			return Result[Session]{}, fail(CodeUnexpected, "错误："+message)
		}

		// without an inline error the outcome is only ever a redirect
		location := res.Header().Get("Location")
		if res.StatusCode()/100 != 3 || location == "" {
			c.reportTransition(StateCaptchaIssued, StateUnauthenticated)
			c.tel.ReportWarning(opVerify.report, "login answered without redirect", res.Status())
			return Result[Session]{}, fail(CodeUnexpected, opVerify.title+"时未记录的错误")
		}

		c.reportTransition(StateCaptchaIssued, StateVerified)
		cookies := ex.cookies()
		if isIdentityRedirect(location) {
			c.reportTransition(StateVerified, StateIdentityPending)
			return succeed(CodeIdentityRequired, "需要身份认证", session.with(StateIdentityPending, cookies)), nil
		}
		c.reportTransition(StateVerified, StateActive)
		return succeed(CodeSuccess, "登录成功", session.with(StateActive, cookies)), nil
	})
}

// CompleteIdentityVerification performs the one-time real name check and
// password reset the portal demands on first access. On success the session
// is no longer trusted and the caller must log in again with the new password.
func (c *Client) CompleteIdentityVerification(ctx context.Context, session Session, name, newPassword string) Result[IdentityOutcome] {
	return run(ctx, c, opIdentity, func(ctx context.Context) (Result[IdentityOutcome], error) {
		if session.State != StateIdentityPending {
			return Result[IdentityOutcome]{}, failf(CodeUnexpected, "当前会话无需身份认证（%s）", session.State)
		}
		if !CheckPasswordPolicy(newPassword) {
			return Result[IdentityOutcome]{}, fail(CodeUnexpected, "新密码不符合要求")
		}
		if strings.TrimSpace(name) == "" {
			return Result[IdentityOutcome]{}, fail(CodeUnexpected, "姓名不能为空")
		}

		ex, err := c.newExchange(session, true)
		if err != nil {
			return Result[IdentityOutcome]{}, err
		}
		doc, err := ex.getDocument(ctx, pathIdentity, nil)
		if err != nil {
			return Result[IdentityOutcome]{}, err
		}
		err = checkSession(doc)
		if err != nil {
			return Result[IdentityOutcome]{}, err
		}
		if !strings.Contains(doc.Text(), markerIdentityPending) {
			c.tel.ReportWarning(opIdentity.report, "identity page without pending marker")
			return Result[IdentityOutcome]{}, fail(CodeUnexpected, "身份认证时未记录的错误")
		}
		csrfToken := doc.Find("input#csrf_token").AttrOr("value", "")

		doc, err = ex.postDocument(ctx, pathIdentityResult, map[string]string{
			"csrf_token": csrfToken,
			"name":       name,
			"new_passwd": newPassword,
			"chk_passwd": newPassword,
		})
		if err != nil {
			return Result[IdentityOutcome]{}, err
		}

		if strings.Contains(text(doc.Find(emptyMarker)), markerPasswordChanged) {
			c.reportTransition(StateIdentityPending, StateActive)
			return succeed(CodeSuccess, "密码修改成功，请重新登录", IdentityOutcome{
				Reauthenticate: true,
				Session:        session.with(StateUnauthenticated, ex.cookies()),
			}), nil
		}

		message := text(doc.Find("font[color='red']"))
		switch {
		case message == "":
			return Result[IdentityOutcome]{}, fail(CodeUnexpected, "身份认证时未记录的错误")
		case strings.Contains(message, markerIdentityMismatch):
			return Result[IdentityOutcome]{}, fail(CodeUnexpected, "姓名不匹配，身份验证失败")
		default:
			return Result[IdentityOutcome]{}, fail(CodeFailure, "错误："+message)
		}
	})
}

// Logout forgets a session locally. The portal is not contacted.
func (c *Client) Logout(session Session) Result[Session] {
	c.reportTransition(session.State, StateUnauthenticated)
	return succeed(CodeSuccess, "已退出登录", NewSession())
}
