package webhook

// Event type headers sent by the forges.
const (
	GitHubEventHeader    = "X-GitHub-Event"
	GitHubDeliveryHeader = "X-GitHub-Delivery"
	GitLabEventHeader    = "X-Gitlab-Event"
)

// githubUninterestingEvents are GitHub event types we never act on.
// Everything else is accepted: GitHub's event taxonomy is large and
// evolving, so unknown types pass through to the workers.
var githubUninterestingEvents = map[string]struct{}{
	"integration_installation":              {},
	"integration_installation_repositories": {},
}

// gitlabInterestingEvents are the only GitLab hook types we act on.
// GitLab's set of relevant hooks is small and fixed, so the policy is
// deny-by-default, the inverse of GitHub's.
var gitlabInterestingEvents = map[string]struct{}{
	"Note Hook":          {},
	"Merge Request Hook": {},
}

// GitHubInteresting reports whether a GitHub event type is worth
// dispatching to the workers.
func GitHubInteresting(eventType string) bool {
	_, uninteresting := githubUninterestingEvents[eventType]

	return !uninteresting
}

// GitLabInteresting reports whether a GitLab hook type is worth
// dispatching to the workers.
func GitLabInteresting(eventType string) bool {
	_, interesting := gitlabInterestingEvents[eventType]

	return interesting
}
