package paginate

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/gallerydiscover/models"
)

var numericTokenRe = regexp.MustCompile(`\d+`)

// Learn implements §4.8: after a successful URL-based navigation, record a
// per-hostname template if current/next share a recognizable numeric
// pattern one apart. A no-op for click-based navigations.
func Learn(state *models.PaginationState, currentURL, nextURL string, at time.Time) {
	if currentURL == "" || nextURL == "" {
		return
	}
	host := hostnameOf(currentURL)
	if host == "" {
		return
	}

	if cn, cp, ok := extractParamValue(currentURL); ok {
		if nn, np, ok := extractParamValue(nextURL); ok && np == cp && nn == cn+1 {
			state.LearnedPatterns[host] = models.LearnedPattern{
				Hostname: host,
				Kind:     models.LearnedKindQueryString,
				Param:    cp,
				Template: "?" + cp + "={N}",
				LastUsed: at,
			}
			return
		}
	}

	cp := currentPathPage(currentURL)
	np := currentPathPage(nextURL)
	if cp.ok && np.ok && np.n == cp.n+1 {
		template := numericTokenRe.ReplaceAllString(currentURL, "{N}")
		state.LearnedPatterns[host] = models.LearnedPattern{
			Hostname: host,
			Kind:     models.LearnedKindPath,
			Template: template,
			LastUsed: at,
		}
	}
}

// applyLearnedPattern reconstructs a next-page URL from a learned template.
func applyLearnedPattern(currentURL string, lp models.LearnedPattern) (string, bool) {
	switch lp.Kind {
	case models.LearnedKindQueryString:
		n, _, ok := extractParamValue(currentURL)
		if !ok {
			return "", false
		}
		return replaceParamValue(currentURL, lp.Param, n+1), true
	case models.LearnedKindPath:
		cur := currentPathPage(currentURL)
		if !cur.ok {
			return "", false
		}
		next := strconv.Itoa(cur.n + 1)
		return strings.Replace(lp.Template, "{N}", next, 1), true
	default:
		return "", false
	}
}
