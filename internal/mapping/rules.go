package mapping

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jandy1990/wwfm-platform-sub006/internal/category"
)

// Rule is a domain override consulted before the generic best-match search.
// apply receives the trimmed, lower-cased raw value and the allowed set and
// returns the chosen allowed value.
type Rule struct {
	Name     string
	Category category.Category // empty applies to every category
	Fields   []string
	apply    func(lower string, allowed []string) (string, bool)
}

func (r Rule) applies(c category.Category, field string) bool {
	if r.Category != "" && r.Category != c {
		return false
	}
	for _, f := range r.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// keywordTarget maps any of a set of substrings to the first target present
// in the allowed set.
type keywordTarget struct {
	keywords []string
	targets  []string
}

func keywordRule(name string, c category.Category, fields []string, table []keywordTarget) Rule {
	return Rule{
		Name:     name,
		Category: c,
		Fields:   fields,
		apply: func(lower string, allowed []string) (string, bool) {
			for _, kt := range table {
				if !containsAny(lower, kt.keywords) {
					continue
				}
				if v, ok := pick(allowed, kt.targets...); ok {
					return v, true
				}
			}
			return "", false
		},
	}
}

var (
	costFields      = []string{"cost", "startup_cost", "ongoing_cost", "cost_impact"}
	frequencyFields = []string{"frequency", "usage_frequency", "practice_frequency", "session_frequency", "meeting_frequency"}
)

// DefaultRules returns the ordered built-in override rules.
func DefaultRules() []Rule {
	return []Rule{
		// Subscription apps advertise freemium pricing; anything mentioning
		// "free" lands in the no-cost bucket.
		keywordRule("apps_free_cost", category.AppsSoftware, []string{"cost"}, []keywordTarget{
			{keywords: []string{"free"}, targets: []string{"Free"}},
		}),
		keywordRule("insurance_cost", "", costFields, []keywordTarget{
			{keywords: []string{"insurance", "covered by", "copay", "co-pay"}, targets: []string{"Covered by insurance"}},
		}),
		{Name: "price_bucket", Fields: costFields, apply: priceBucket},
		// Reached only when no amount was found: "$30/month after free trial"
		// is priced above.
		keywordRule("free_cost", "", costFields, []keywordTarget{
			{keywords: []string{"free", "no cost", "no charge"}, targets: []string{"Free"}},
		}),

		keywordRule("immediate_results", "", []string{"time_to_results"}, []keywordTarget{
			{keywords: []string{"immediate", "instant", "right away", "same day", "first use", "first session"}, targets: []string{"Immediately"}},
		}),
		{Name: "time_to_results_duration", Fields: []string{"time_to_results"}, apply: durationBucket(timeToResultsBuckets)},

		keywordRule("still_using", "", []string{"length_of_use"}, []keywordTarget{
			{keywords: []string{"still", "ongoing", "currently", "indefinite", "long-term", "long term"}, targets: []string{"Still using"}},
		}),
		{Name: "length_of_use_duration", Fields: []string{"length_of_use"}, apply: durationBucket(lengthOfUseBuckets)},
		keywordRule("no_recovery", "", []string{"recovery_time"}, []keywordTarget{
			{keywords: []string{"no recovery", "no downtime", "none"}, targets: []string{"None"}},
		}),
		{Name: "recovery_duration", Fields: []string{"recovery_time"}, apply: durationBucket(recoveryBuckets)},
		keywordRule("same_day_wait", "", []string{"wait_time"}, []keywordTarget{
			{keywords: []string{"same day", "same-day", "walk-in", "walk in", "immediate"}, targets: []string{"Same day"}},
		}),
		{Name: "wait_duration", Fields: []string{"wait_time"}, apply: durationBucket(waitBuckets)},
		{Name: "time_commitment_minutes", Fields: []string{"time_commitment"}, apply: minutesBucket},

		{Name: "times_per_day", Fields: append([]string{"skincare_frequency"}, frequencyFields...), apply: timesPerDay},
		keywordRule("skincare_frequency", category.BeautySkincare, []string{"skincare_frequency"}, []keywordTarget{
			{keywords: []string{"twice", "morning and night", "morning and evening", "am and pm", "2x daily", "2 times a day"}, targets: []string{"Twice daily"}},
			{keywords: []string{"every other day", "alternate days"}, targets: []string{"Every other day"}},
			{keywords: []string{"times a week", "times per week", "x a week", "x per week"}, targets: []string{"2-3 times per week"}},
			{keywords: []string{"weekly", "once a week"}, targets: []string{"Weekly"}},
			{keywords: []string{"morning", " am", "a.m."}, targets: []string{"Once daily (AM)"}},
			{keywords: []string{"night", "evening", "bedtime", " pm", "p.m."}, targets: []string{"Once daily (PM)"}},
			{keywords: []string{"as needed", "when needed", "occasional"}, targets: []string{"As needed"}},
		}),
		keywordRule("frequency", "", frequencyFields, []keywordTarget{
			{keywords: []string{"as needed", "when needed", "prn", "occasional"}, targets: []string{"As needed"}},
			{keywords: []string{"multiple times a day", "several times a day", "throughout the day", "multiple times daily"}, targets: []string{"Multiple times daily"}},
			{keywords: []string{"three times a day", "3 times a day", "three times daily", "3x daily", "thrice"}, targets: []string{"Three times daily", "Multiple times daily"}},
			{keywords: []string{"twice a day", "twice daily", "two times a day", "2 times a day", "2x daily", "morning and night"}, targets: []string{"Twice daily", "Multiple times daily"}},
			{keywords: []string{"twice a week", "times a week", "times per week", "x a week", "every other day"}, targets: []string{"Few times a week", "Weekly"}},
			{keywords: []string{"every 2 weeks", "every two weeks", "biweekly", "bi-weekly", "every other week", "fortnight"}, targets: []string{"Every 2 weeks"}},
			{keywords: []string{"week"}, targets: []string{"Weekly"}},
			{keywords: []string{"month"}, targets: []string{"Monthly"}},
			{keywords: []string{"daily", "once a day", "every day", "each day", "per day", "nightly", "bedtime", "every morning", "every evening", "every night", "each morning"}, targets: []string{"Once daily", "Daily"}},
			{keywords: []string{"one-time", "one time", "single", "once"}, targets: []string{"One-time only"}},
			{keywords: []string{"irregular", "varies", "sporadic"}, targets: []string{"Irregular", "As needed"}},
		}),

		keywordRule("subscription_type", "", []string{"subscription_type"}, []keywordTarget{
			{keywords: []string{"free", "freemium"}, targets: []string{"Free version"}},
			{keywords: []string{"lifetime", "one-time", "one time", "single purchase", "pay once"}, targets: []string{"One-time purchase"}},
			{keywords: []string{"annual", "year"}, targets: []string{"Annual subscription"}},
			{keywords: []string{"month", "subscription"}, targets: []string{"Monthly subscription"}},
		}),
		keywordRule("format", "", []string{"format"}, []keywordTarget{
			{keywords: []string{"hybrid", "both", "in-person and online", "online and in-person"}, targets: []string{"Hybrid"}},
			{keywords: []string{"workbook"}, targets: []string{"Workbook"}},
			{keywords: []string{"audio"}, targets: []string{"Audiobook"}},
			{keywords: []string{"ebook", "e-book", "kindle", "digital book"}, targets: []string{"E-book"}},
			{keywords: []string{"paperback", "hardcover", "print", "physical"}, targets: []string{"Physical book"}},
			{keywords: []string{"course", "class", "program"}, targets: []string{"Online course"}},
			{keywords: []string{"video", "youtube"}, targets: []string{"Video series", "Virtual/Online"}},
			{keywords: []string{"phone", "call", "hotline", "text line", "sms"}, targets: []string{"Phone"}},
			{keywords: []string{"online", "virtual", "telehealth", "zoom", "remote", "app"}, targets: []string{"Virtual/Online"}},
			{keywords: []string{"in person", "in-person", "office", "clinic", "face to face", "face-to-face"}, targets: []string{"In-person"}},
			{keywords: []string{"book"}, targets: []string{"Physical book"}},
		}),
		keywordRule("difficulty", "", []string{"learning_difficulty"}, []keywordTarget{
			{keywords: []string{"beginner", "easy", "intro", "basic"}, targets: []string{"Beginner"}},
			{keywords: []string{"advanced", "expert", "difficult", "hard"}, targets: []string{"Advanced"}},
			{keywords: []string{"intermediate", "moderate", "medium"}, targets: []string{"Intermediate"}},
		}),
		keywordRule("group_size", "", []string{"group_size"}, []keywordTarget{
			{keywords: []string{"small", "intimate", "few people"}, targets: []string{"Small (under 10)"}},
			{keywords: []string{"large", "big", "hundreds"}, targets: []string{"Large (over 25)"}},
			{keywords: []string{"medium", "moderate"}, targets: []string{"Medium (10-25)"}},
			{keywords: []string{"varies", "depends"}, targets: []string{"Varies"}},
		}),
		keywordRule("response_time", "", []string{"response_time"}, []keywordTarget{
			{keywords: []string{"24/7", "immediate", "instant", "right away"}, targets: []string{"Immediate"}},
			{keywords: []string{"hour"}, targets: []string{"Within hours"}},
			{keywords: []string{"day"}, targets: []string{"Within a day"}},
			{keywords: []string{"week"}, targets: []string{"Within a week"}},
		}),

		keywordRule("no_side_effects", "", []string{"side_effects", "challenges"}, []keywordTarget{
			{keywords: []string{"none", "no side effects", "no significant", "n/a", "no challenges", "nothing"}, targets: []string{"None"}},
		}),
		keywordRule("side_effects", "", []string{"side_effects"}, []keywordTarget{
			{keywords: []string{"nause", "queasy"}, targets: []string{"Nausea"}},
			{keywords: []string{"headache", "migraine"}, targets: []string{"Headache"}},
			{keywords: []string{"drows", "sleepy", "sedat", "grogg"}, targets: []string{"Drowsiness"}},
			{keywords: []string{"insomnia", "trouble sleeping", "sleeplessness"}, targets: []string{"Insomnia"}},
			{keywords: []string{"dizz", "lightheaded", "light-headed", "vertigo"}, targets: []string{"Dizziness"}},
			{keywords: []string{"weight"}, targets: []string{"Weight changes"}},
			{keywords: []string{"stomach", "digest", "diarrhea", "constipation", "bloat", "gi upset"}, targets: []string{"Digestive issues"}},
			{keywords: []string{"dry mouth"}, targets: []string{"Dry mouth"}},
			{keywords: []string{"rash", "irritat", "redness", "itch", "peeling", "dryness", "breakout", "purging"}, targets: []string{"Skin irritation"}},
			{keywords: []string{"tired", "fatigue", "lethargy", "exhaust"}, targets: []string{"Fatigue"}},
		}),
		keywordRule("challenges", "", []string{"challenges"}, []keywordTarget{
			{keywords: []string{"consisten", "habit", "stick with", "sticking with"}, targets: []string{"Hard to stay consistent"}},
			{keywords: []string{"motivat", "boring", "discipline"}, targets: []string{"Motivation"}},
			{keywords: []string{"expens", "cost", "price", "afford"}, targets: []string{"Cost"}},
			{keywords: []string{"time", "busy", "schedule"}, targets: []string{"Time commitment"}},
			{keywords: []string{"getting started", "learning curve", "start", "overwhelm"}, targets: []string{"Hard to get started"}},
			{keywords: []string{"right fit", "finding", "match", "compatib"}, targets: []string{"Finding the right fit"}},
		}),
	}
}

// pick returns the first target that is a member of allowed.
func pick(allowed []string, targets ...string) (string, bool) {
	for _, t := range targets {
		if contains(allowed, t) {
			return t, true
		}
	}
	return "", false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// --- Price bucketing ---

var (
	amountPattern     = regexp.MustCompile(`\$\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	bareAmountPattern = regexp.MustCompile(`([0-9][0-9,]*(?:\.[0-9]+)?)\s*(?:dollars|usd|bucks)`)
	underPattern      = regexp.MustCompile(`^under \$([0-9][0-9,]*(?:\.[0-9]+)?)`)
	rangePattern      = regexp.MustCompile(`^\$([0-9][0-9,]*(?:\.[0-9]+)?)\s*-\s*\$([0-9][0-9,]*(?:\.[0-9]+)?)`)
	plusPattern       = regexp.MustCompile(`^\$([0-9][0-9,]*(?:\.[0-9]+)?)\+`)
)

type priceRange struct {
	label string
	min   float64
}

// parsePriceLabels extracts the lower bound of every priced allowed label
// ("Under $10/month", "$10-$24.99/month", "$200+/month"), sorted by bound.
// It also reports the billing period the labels are expressed in.
func parsePriceLabels(allowed []string) ([]priceRange, string) {
	var ranges []priceRange
	period := ""
	for _, label := range allowed {
		l := strings.ToLower(label)
		var lo float64
		var ok bool
		switch {
		case underPattern.MatchString(l):
			lo, ok = 0, true
		case rangePattern.MatchString(l):
			lo, ok = parseAmount(rangePattern.FindStringSubmatch(l)[1])
		case plusPattern.MatchString(l):
			lo, ok = parseAmount(plusPattern.FindStringSubmatch(l)[1])
		}
		if !ok {
			continue
		}
		ranges = append(ranges, priceRange{label: label, min: lo})
		switch {
		case strings.HasSuffix(l, "/month"):
			period = "month"
		case strings.HasSuffix(l, "/session"):
			period = "session"
		}
	}
	sort.SliceStable(ranges, func(i, j int) bool { return ranges[i].min < ranges[j].min })
	return ranges, period
}

func priceBucket(lower string, allowed []string) (string, bool) {
	amount, ok := extractAmount(lower)
	if !ok {
		return "", false
	}

	ranges, period := parsePriceLabels(allowed)
	if len(ranges) == 0 {
		return "", false
	}

	if period == "month" {
		switch {
		case containsAny(lower, []string{"/year", "per year", "a year", "annual", "/yr", "yearly"}):
			amount = amount / 12
		case containsAny(lower, []string{"/week", "per week", "a week", "weekly"}):
			amount = amount * 52 / 12
		case containsAny(lower, []string{"/day", "per day", "a day", "daily"}):
			amount = amount * 30
		}
	}

	if amount == 0 {
		if v, ok := pick(allowed, "Free"); ok {
			return v, true
		}
	}

	chosen := ranges[0].label
	for _, r := range ranges {
		if amount >= r.min {
			chosen = r.label
		}
	}
	return chosen, true
}

func extractAmount(lower string) (float64, bool) {
	if m := amountPattern.FindStringSubmatch(lower); m != nil {
		return parseAmount(m[1])
	}
	if m := bareAmountPattern.FindStringSubmatch(lower); m != nil {
		return parseAmount(m[1])
	}
	return 0, false
}

func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || math.IsNaN(v) || v < 0 {
		return 0, false
	}
	return v, true
}

// --- Frequency counting ---

var timesPerDayPattern = regexp.MustCompile(`\b([0-9]+|one|two|three|four|five|six)\s*(?:x|times?)\s*(?:(?:a|per|each|every)\s+|/\s*)?(?:day|daily)\b`)

var countWords = map[string]int{"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6}

// timesPerDay places "N times daily" phrasings by their count.
func timesPerDay(lower string, allowed []string) (string, bool) {
	m := timesPerDayPattern.FindStringSubmatch(lower)
	if m == nil {
		return "", false
	}
	n, ok := countWords[m[1]]
	if !ok {
		v, err := strconv.Atoi(m[1])
		if err != nil {
			return "", false
		}
		n = v
	}
	switch {
	case n <= 0:
		return "", false
	case n == 1:
		return pick(allowed, "Once daily", "Daily")
	case n == 2:
		return pick(allowed, "Twice daily", "Multiple times daily")
	case n == 3:
		return pick(allowed, "Three times daily", "Multiple times daily")
	default:
		return pick(allowed, "Multiple times daily", "Three times daily")
	}
}

// --- Duration bucketing ---

var durationPattern = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)(\+)?(?:\s*(?:-|to)\s*([0-9]+(?:\.[0-9]+)?))?\s*(day|week|month|year|hour|minute|min|hr)s?\b(\+)?`)

var (
	belowPattern = regexp.MustCompile(`(?:\b(?:less than|fewer than|shorter than|under|below)|<)\s*$`)
	abovePattern = regexp.MustCompile(`(?:\b(?:over|more than|longer than|greater than|upwards of)|>)\s*$`)
)

// numberWords rewrites spelled-out quantities as digits. Patterns are
// word-bounded and applied in order.
var numberWords = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\ba couple of\b`), "2"},
	{regexp.MustCompile(`\ba couple\b`), "2"},
	{regexp.MustCompile(`\ba few\b`), "3"},
	{regexp.MustCompile(`\bfew\b`), "3"},
	{regexp.MustCompile(`\bseveral\b`), "4"},
	{regexp.MustCompile(`\bone\b`), "1"},
	{regexp.MustCompile(`\btwo\b`), "2"},
	{regexp.MustCompile(`\bthree\b`), "3"},
	{regexp.MustCompile(`\bfour\b`), "4"},
	{regexp.MustCompile(`\bfive\b`), "5"},
	{regexp.MustCompile(`\bsix\b`), "6"},
	{regexp.MustCompile(`\bseven\b`), "7"},
	{regexp.MustCompile(`\beight\b`), "8"},
	{regexp.MustCompile(`\bnine\b`), "9"},
	{regexp.MustCompile(`\bten\b`), "10"},
	{regexp.MustCompile(`\btwelve\b`), "12"},
	{regexp.MustCompile(`\ban?\b`), "1"},
}

func replaceNumberWords(s string) string {
	for _, w := range numberWords {
		s = w.re.ReplaceAllString(s, w.repl)
	}
	return s
}

// qualifierDelta nudges "less than N" just below N and "over N" just above.
// Bucket edges written as justUnder(N) sit between the two.
const qualifierDelta = 1e-6

func justUnder(n float64) float64 { return n - qualifierDelta/2 }

// Unit scales for parseDuration, in days and in minutes.
var (
	daysPerUnit = map[string]float64{
		"minute": 1.0 / (24 * 60), "min": 1.0 / (24 * 60),
		"hour": 1.0 / 24, "hr": 1.0 / 24,
		"day": 1, "week": 7, "month": 30, "year": 365,
	}
	minutesPerUnit = map[string]float64{
		"minute": 1, "min": 1,
		"hour": 60, "hr": 60,
		"day": 24 * 60, "week": 7 * 24 * 60,
	}
)

// parseDuration converts the first duration phrase in lower to the unit
// described by scale. Ranges use their upper bound. "less than"/"under"
// place the value just below the number, "over"/"more than"/"+" just above.
func parseDuration(lower string, scale map[string]float64) (float64, bool) {
	s := replaceNumberWords(lower)
	idx := durationPattern.FindStringSubmatchIndex(s)
	if idx == nil {
		return 0, false
	}
	group := func(i int) string {
		if idx[2*i] < 0 {
			return ""
		}
		return s[idx[2*i]:idx[2*i+1]]
	}

	n, ok := parseAmount(group(1))
	if !ok {
		return 0, false
	}
	if hi := group(3); hi != "" {
		if v, ok := parseAmount(hi); ok {
			n = v
		}
	}
	per, ok := scale[group(4)]
	if !ok {
		return 0, false
	}
	n *= per

	prefix := s[:idx[0]]
	switch {
	case group(2) != "" || group(5) != "" || abovePattern.MatchString(prefix):
		n += qualifierDelta
	case belowPattern.MatchString(prefix):
		n -= qualifierDelta
	}
	return n, true
}

func parseDays(lower string) (float64, bool) {
	return parseDuration(lower, daysPerUnit)
}

type dayBucket struct {
	maxDays float64
	label   string
}

var (
	timeToResultsBuckets = []dayBucket{
		{1, "Immediately"},
		{justUnder(7), "Within days"},
		{14, "1-2 weeks"},
		{justUnder(30), "3-4 weeks"},
		{justUnder(90), "1-2 months"},
		{180, "3-6 months"},
		{math.Inf(1), "6+ months"},
	}
	lengthOfUseBuckets = []dayBucket{
		{justUnder(30), "Less than 1 month"},
		{90, "1-3 months"},
		{180, "3-6 months"},
		{365, "6-12 months"},
		{730, "1-2 years"},
		{math.Inf(1), "Over 2 years"},
	}
	recoveryBuckets = []dayBucket{
		{0, "None"},
		{2, "1-2 days"},
		{7, "3-7 days"},
		{28, "1-4 weeks"},
		{90, "1-3 months"},
		{math.Inf(1), "3+ months"},
	}
	waitBuckets = []dayBucket{
		{1, "Same day"},
		{7, "Within a week"},
		{14, "1-2 weeks"},
		{28, "2-4 weeks"},
		{90, "1-3 months"},
		{math.Inf(1), "3+ months"},
	}
)

func durationBucket(buckets []dayBucket) func(string, []string) (string, bool) {
	return func(lower string, allowed []string) (string, bool) {
		days, ok := parseDays(lower)
		if !ok {
			return "", false
		}
		for _, b := range buckets {
			if days <= b.maxDays {
				return pick(allowed, b.label)
			}
		}
		return "", false
	}
}

var minuteBuckets = []struct {
	max   float64
	label string
}{
	{justUnder(5), "Under 5 minutes"},
	{10, "5-10 minutes"},
	{20, "10-20 minutes"},
	{30, "20-30 minutes"},
	{60, "30-60 minutes"},
	{math.Inf(1), "Over 1 hour"},
}

func minutesBucket(lower string, allowed []string) (string, bool) {
	minutes, ok := parseDuration(lower, minutesPerUnit)
	if !ok {
		return "", false
	}
	for _, b := range minuteBuckets {
		if minutes <= b.max {
			return pick(allowed, b.label)
		}
	}
	return "", false
}
