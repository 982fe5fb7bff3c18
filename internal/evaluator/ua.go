package evaluator

import (
	"strings"
	"sync"

	"github.com/ua-parser/uap-go/uaparser"
)

// maxUserAgentLength bounds parser input; anything longer is almost
// certainly not a real browser and not worth the regex time.
const maxUserAgentLength = 1000

// uaParser is shared process-wide; uap-go parsers are safe for concurrent
// use and expensive to construct.
var (
	uaParserOnce sync.Once
	uaParser     *uaparser.Parser
)

func sharedUAParser() *uaparser.Parser {
	uaParserOnce.Do(func() {
		uaParser = uaparser.NewFromSaved()
	})
	return uaParser
}

// ua fields resolvable from a parsed user agent.
const (
	uaFieldOSName         = "os_name"
	uaFieldOSVersion      = "os_version"
	uaFieldBrowserName    = "browser_name"
	uaFieldBrowserVersion = "browser_version"
)

// uaValue derives browser/OS fields by parsing the user's userAgent
// string. Returns nil when the agent is absent, oversized, or the field is
// not one of the derivable ones.
func uaValue(user *User, field string) any {
	agent := user.UserAgent
	if agent == "" || len(agent) > maxUserAgentLength {
		return nil
	}

	normalized := strings.ToLower(field)
	client := sharedUAParser().Parse(agent)

	switch normalized {
	case uaFieldOSName, "osname":
		return client.Os.Family
	case uaFieldOSVersion, "osversion":
		return joinVersion(client.Os.Major, client.Os.Minor, client.Os.Patch)
	case uaFieldBrowserName, "browsername":
		return client.UserAgent.Family
	case uaFieldBrowserVersion, "browserversion":
		return joinVersion(client.UserAgent.Major, client.UserAgent.Minor, client.UserAgent.Patch)
	default:
		return nil
	}
}

// joinVersion renders "major.minor.patch", trimming absent tail parts.
func joinVersion(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			break
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, ".")
}
