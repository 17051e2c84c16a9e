package auth

import (
	"fmt"
	"io"
	"net/url"
	"strings"
)

// WriteLoginGuide prints how to capture a token and cookie from a logged-in
// browser session on the official-account admin console.
func WriteLoginGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "CAPTURING A SESSION")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "1. Open https://mp.weixin.qq.com and log in by scanning the QR code.")
	fmt.Fprintln(w, "2. After login the address bar ends with ...&token=NNNNNNNNN.")
	fmt.Fprintln(w, "   Copy that number: it is the token.")
	fmt.Fprintln(w, "3. Open Developer Tools (F12), Network tab, and reload the page.")
	fmt.Fprintln(w, "4. Select any request to mp.weixin.qq.com, open Request Headers and")
	fmt.Fprintln(w, "   copy the whole value of the Cookie: header.")
	fmt.Fprintln(w, "5. Run `mpscraper auth set` and paste both values, or paste the full")
	fmt.Fprintln(w, "   address bar URL when asked for the token.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Sessions stop working after a few days. When a run fails with an")
	fmt.Fprintln(w, "auth_expired error, log in again and repeat these steps.")
	fmt.Fprintln(w, rule)
}

// ParseToken accepts either a bare token or a console URL carrying a
// token query parameter.
func ParseToken(input string) string {
	input = strings.TrimSpace(input)
	if !strings.Contains(input, "token=") {
		return input
	}

	if u, err := url.Parse(input); err == nil {
		if tok := u.Query().Get("token"); tok != "" {
			return tok
		}
	}

	// fragment such as "lang=zh_CN&token=123"
	if q, err := url.ParseQuery(input[strings.Index(input, "token="):]); err == nil {
		return q.Get("token")
	}
	return input
}

// NormalizeCookie trims a pasted cookie header, dropping a leading
// "Cookie:" label and surrounding whitespace.
func NormalizeCookie(input string) string {
	input = strings.TrimSpace(input)
	if len(input) >= 7 && strings.EqualFold(input[:7], "cookie:") {
		input = strings.TrimSpace(input[7:])
	}
	return input
}
