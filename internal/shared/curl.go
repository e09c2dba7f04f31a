// Utilities for importing a browser session from a DevTools "Copy as cURL" command.
package shared

import (
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
)

var (
	headerRegex = regexp.MustCompile(`-H\s+'([^']+)'|-H\s+"([^"]+)"`)
	cookieRegex = regexp.MustCompile(`(?:-b|--cookie)\s+'([^']+)'|(?:-b|--cookie)\s+"([^"]+)"`)
)

// CurlHeaders represents parsed headers and cookies from a cURL command.
type CurlHeaders struct {
	Headers map[string]string
	Cookie  string
}

// ParseCurlFile reads a .sh file containing a cURL command and extracts headers.
func ParseCurlFile(filepath string) (*CurlHeaders, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read curl file: %w", err)
	}

	return ParseCurlCommand(string(content))
}

// ParseCurlCommand parses a cURL command string and extracts headers.
//
// A cookie given with -b/--cookie takes precedence over a Cookie header.
func ParseCurlCommand(curlCmd string) (*CurlHeaders, error) {
	curlCmd = strings.ReplaceAll(curlCmd, "\\\n", " ")
	curlCmd = strings.ReplaceAll(curlCmd, "\\", "")

	headers := make(map[string]string)
	var cookie, headerCookie string

	for _, match := range headerRegex.FindAllStringSubmatch(curlCmd, -1) {
		headerLine := firstNonEmpty(match[1], match[2])

		key, value, ok := strings.Cut(headerLine, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if strings.EqualFold(key, "cookie") {
			if headerCookie == "" {
				headerCookie = value
			}
			continue
		}
		headers[key] = value
	}

	if m := cookieRegex.FindStringSubmatch(curlCmd); len(m) > 2 {
		cookie = firstNonEmpty(m[1], m[2])
	}
	if cookie == "" {
		cookie = headerCookie
	}

	if len(headers) == 0 && cookie == "" {
		return nil, fmt.Errorf("%w: no headers found in curl command", ErrInvalidInput)
	}

	return &CurlHeaders{Headers: headers, Cookie: cookie}, nil
}

// Cookies splits the Cookie value into name/value pairs.
func (c *CurlHeaders) Cookies() map[string]string {
	out := make(map[string]string)
	if c.Cookie == "" {
		return out
	}

	parsed, err := http.ParseCookie(c.Cookie)
	if err != nil {
		for _, part := range strings.Split(c.Cookie, ";") {
			name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
			if ok && name != "" {
				out[name] = value
			}
		}
		return out
	}

	for _, ck := range parsed {
		out[ck.Name] = ck.Value
	}
	return out
}

// BearerToken returns the token of an "Authorization: Bearer" header, if any.
func (c *CurlHeaders) BearerToken() string {
	for key, value := range c.Headers {
		if !strings.EqualFold(key, "authorization") {
			continue
		}
		scheme, token, ok := strings.Cut(value, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

// SessionTokens extracts the access and refresh tokens from the captured request.
//
// Cookies named accessKey/refreshKey win; the bearer header is the access token fallback.
func (c *CurlHeaders) SessionTokens(accessKey, refreshKey string) (access, refresh string) {
	cookies := c.Cookies()
	access = Unquote(cookies[accessKey])
	refresh = Unquote(cookies[refreshKey])
	if access == "" {
		access = c.BearerToken()
	}
	return access, refresh
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
