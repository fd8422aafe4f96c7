package browser

// Selectors names every element of the web client the bot interacts with.
// The web client is not ours and its DOM changes without notice; when it
// does, fix the selector here (or override it in clippy.yaml) rather than at
// the call sites.
//
// Values use Playwright selector syntax, so css, text= and xpath= forms are
// all accepted.
type Selectors struct {
	// Login wall
	EmailLoginButton string `yaml:"email_login_button" json:"email_login_button"`
	EmailInput       string `yaml:"email_input" json:"email_input"`
	EmailSubmit      string `yaml:"email_submit" json:"email_submit"`

	// Compose
	ComposeBox    string `yaml:"compose_box" json:"compose_box"`
	CastSubmit    string `yaml:"cast_submit" json:"cast_submit"`
	CastSentToast string `yaml:"cast_sent_toast" json:"cast_sent_toast"`

	// Profile page. FollowControl matches the button in any of its labels,
	// FollowedControl only in the followed labels.
	FollowControl   string `yaml:"follow_control" json:"follow_control"`
	FollowedControl string `yaml:"followed_control" json:"followed_control"`

	// Search
	SearchInput       string `yaml:"search_input" json:"search_input"`
	PeopleFilter      string `yaml:"people_filter" json:"people_filter"`
	SearchResultLinks string `yaml:"search_result_links" json:"search_result_links"`
}

// DefaultSelectors returns the selectors matching the current web client.
func DefaultSelectors() Selectors {
	return Selectors{
		EmailLoginButton: `button:has-text("email")`,
		EmailInput:       `input[type="email"]`,
		EmailSubmit:      `button[type="submit"]`,

		ComposeBox:    `div[contenteditable="true"][role="textbox"]`,
		CastSubmit:    `button:text-is("Cast")`,
		CastSentToast: `text=/cast (sent|posted)/i`,

		FollowControl:   `xpath=//main//button[normalize-space()='Follow' or normalize-space()='Following' or normalize-space()='Unfollow']`,
		FollowedControl: `xpath=//main//button[normalize-space()='Following' or normalize-space()='Unfollow']`,

		SearchInput:       `input[type="search"], input[placeholder*="Search"]`,
		PeopleFilter:      `xpath=//*[self::button or self::a or @role='tab'][normalize-space()='People' or normalize-space()='Users']`,
		SearchResultLinks: `main a[href^="/"]`,
	}
}

// merge returns s with empty fields taken from def.
func (s Selectors) merge(def Selectors) Selectors {
	pick := func(v, d string) string {
		if v == "" {
			return d
		}
		return v
	}
	return Selectors{
		EmailLoginButton:  pick(s.EmailLoginButton, def.EmailLoginButton),
		EmailInput:        pick(s.EmailInput, def.EmailInput),
		EmailSubmit:       pick(s.EmailSubmit, def.EmailSubmit),
		ComposeBox:        pick(s.ComposeBox, def.ComposeBox),
		CastSubmit:        pick(s.CastSubmit, def.CastSubmit),
		CastSentToast:     pick(s.CastSentToast, def.CastSentToast),
		FollowControl:     pick(s.FollowControl, def.FollowControl),
		FollowedControl:   pick(s.FollowedControl, def.FollowedControl),
		SearchInput:       pick(s.SearchInput, def.SearchInput),
		PeopleFilter:      pick(s.PeopleFilter, def.PeopleFilter),
		SearchResultLinks: pick(s.SearchResultLinks, def.SearchResultLinks),
	}
}
