package browserbase

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

type Action string

const (
	Navigate   Action = "navigate"
	Click      Action = "click"
	Type       Action = "type"
	Wait       Action = "wait"
	Screenshot Action = "screenshot"
	Extract    Action = "extract"
)

// Step is one browser action. Timeout applies to Wait only.
type Step struct {
	Action   Action
	Selector string
	Value    string
	URL      string
	Timeout  time.Duration
}

// StepResult records one executed step. Screenshot is a data URL.
type StepResult struct {
	Action     Action        `json:"action"`
	Status     string        `json:"status"`
	Duration   time.Duration `json:"duration"`
	Screenshot string        `json:"screenshot,omitempty"`
}

// Result is what a plan execution observed.
type Result struct {
	Steps    []StepResult `json:"steps"`
	FinalURL string       `json:"finalUrl"`
	Text     string       `json:"text"`
}

// Screenshots returns the captured screenshots in step order.
func (r *Result) Screenshots() []string {
	out := make([]string, 0)
	for _, s := range r.Steps {
		if s.Screenshot != "" {
			out = append(out, s.Screenshot)
		}
	}
	return out
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AppealPlan logs into portalURL, opens the appeal form, fills formFields and
// the letter, submits and captures the confirmation page.
func AppealPlan(portalURL string, creds Credentials, letter string, formFields map[string]string) []Step {
	steps := []Step{
		{Action: Navigate, URL: portalURL},
		{Action: Wait, Timeout: 2 * time.Second},
		{Action: Type, Selector: `input[name="username"], input[type="email"], #username`, Value: creds.Username},
		{Action: Type, Selector: `input[name="password"], input[type="password"], #password`, Value: creds.Password},
		{Action: Click, Selector: `button[type="submit"], input[type="submit"], .login-btn`},
		{Action: Wait, Timeout: 3 * time.Second},
		{Action: Click, Selector: `a[href*="appeal"], a[href*="special-circumstances"], .appeal-link`},
		{Action: Wait, Timeout: 2 * time.Second},
		{Action: Screenshot},
	}

	// Map order is random; fill fields in a stable order.
	names := make([]string, 0, len(formFields))
	for name := range formFields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		steps = append(steps, Step{
			Action:   Type,
			Selector: fmt.Sprintf(`[name="%s"], #%s`, name, name),
			Value:    formFields[name],
		})
	}

	return append(steps,
		Step{Action: Type, Selector: `textarea[name="appeal"], textarea[name="statement"], .appeal-text`, Value: letter},
		Step{Action: Click, Selector: `button[type="submit"], .submit-btn`},
		Step{Action: Wait, Timeout: 5 * time.Second},
		Step{Action: Screenshot},
		Step{Action: Extract},
	)
}

// LoginPlan logs into portalURL and extracts the landing page.
func LoginPlan(portalURL string, creds Credentials) []Step {
	return []Step{
		{Action: Navigate, URL: portalURL},
		{Action: Type, Selector: `input[name="username"]`, Value: creds.Username},
		{Action: Type, Selector: `input[name="password"]`, Value: creds.Password},
		{Action: Click, Selector: `button[type="submit"]`},
		{Action: Wait, Timeout: 3 * time.Second},
		{Action: Extract},
	}
}

var (
	confirmationInURL  = regexp.MustCompile(`(?i)confirmation[=/](\w+)`)
	confirmationInText = regexp.MustCompile(`(?i)confirmation[:\s]*([A-Z0-9-]+)`)
)

// ConfirmationNumber finds the portal's confirmation number in the final URL
// or the extracted page text, falling back to a FIN-<unix ms> reference.
func ConfirmationNumber(r *Result, now time.Time) string {
	if r != nil {
		if m := confirmationInURL.FindStringSubmatch(r.FinalURL); m != nil {
			return m[1]
		}
		if m := confirmationInText.FindStringSubmatch(r.Text); m != nil {
			return m[1]
		}
	}
	return fmt.Sprintf("FIN-%d", now.UnixMilli())
}

// Portal types with a dedicated automation template.
const (
	PortalStanford = "stanford"
	PortalHarvard  = "harvard"
	PortalGeneric  = "generic"
)

func PortalType(portalURL string) string {
	switch {
	case strings.Contains(portalURL, "stanford.edu"):
		return PortalStanford
	case strings.Contains(portalURL, "harvard.edu"):
		return PortalHarvard
	default:
		return PortalGeneric
	}
}

var templates = map[string]string{
	PortalStanford: `
      // Stanford Financial Aid Portal Automation
      await page.goto('https://financialaid.stanford.edu/student');
      await page.fill('#sunetid', credentials.username);
      await page.fill('#password', credentials.password);
      await page.click('button[type="submit"]');
      await page.waitForNavigation();
      await page.click('text=Special Circumstances');
      // ... continue with form filling
    `,
	PortalHarvard: `
      // Harvard Financial Aid Portal Automation
      await page.goto('https://college.harvard.edu/financial-aid');
      // ... Harvard-specific automation
    `,
	PortalGeneric: `
      // Generic Financial Aid Portal Automation
      await page.goto(portalUrl);
      await page.fill('input[type="email"], input[name="username"]', credentials.username);
      await page.fill('input[type="password"]', credentials.password);
      await page.click('button[type="submit"]');
      // ... generic form detection and filling
    `,
}

// AutomationCode returns the dry-run script template for a portal type.
func AutomationCode(portalType string) string {
	if code, ok := templates[portalType]; ok {
		return code
	}
	return templates[PortalGeneric]
}

var stepMarkers = []string{"await page.", "click(", "fill(", "navigate"}

// EstimateSteps counts action markers in a generated script. Markers are
// counted independently, so "await page.click(" scores twice.
func EstimateSteps(code string) int {
	n := 0
	for _, m := range stepMarkers {
		n += strings.Count(code, m)
	}
	return n
}
