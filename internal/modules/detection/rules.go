package detection

import (
	"context"
	"regexp"
	"strings"

	"github.com/mx-space/sentinel/internal/models"
)

const ruleProvider = "rule-based"

// defaultSpamKeywords always count as spam on top of the configured ones.
var defaultSpamKeywords = []string{
	"casino", "viagra", "cialis", "gambling", "lottery", "poker", "blackjack",
	"free followers", "work from home", "crypto giveaway",
	"代孕", "代开", "发票", "刷单", "网赚", "信用卡套现", "博彩", "赌博",
}

var defaultProfanity = []string{
	"fuck", "shit", "damn", "ass", "bitch", "bastard", "crap", "dick", "piss", "cock", "pussy",
}

var defaultHateKeywords = []string{"nazi", "terrorist", "kys", "kill yourself"}

var dangerousKeywords = map[string][]string{
	"selfHarm":        {"suicide", "self harm", "kill myself", "end my life"},
	"drugs":           {"cocaine", "heroin", "meth", "buy drugs"},
	"illegalActivity": {"sell weapons", "buy guns illegally", "hack account"},
	"dangerousActs":   {"dangerous challenge", "extreme stunt"},
}

var (
	linkPattern       = regexp.MustCompile(`(?i)https?://[^\s]+`)
	suspiciousDomains = []string{"bit.ly", "tinyurl", "goo.gl", "t.co/"}
)

// RuleDetector flags text with keyword lists and simple spam heuristics.
// It never calls out and never fails.
type RuleDetector struct {
	spamKeywords []string
	blocked      []*regexp.Regexp
	profanity    []*regexp.Regexp
}

// NewRuleDetector compiles the configured keywords and patterns. Patterns
// that do not compile are matched as plain substrings instead.
func NewRuleDetector(spamKeywords, blockedPatterns []string) *RuleDetector {
	d := &RuleDetector{}
	seen := map[string]struct{}{}
	for _, kw := range append(append([]string{}, spamKeywords...), defaultSpamKeywords...) {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		d.spamKeywords = append(d.spamKeywords, kw)
	}
	for _, p := range blockedPatterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(p))
		}
		d.blocked = append(d.blocked, re)
	}
	for _, w := range defaultProfanity {
		d.profanity = append(d.profanity, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(w)+`\b`))
	}
	return d
}

func (d *RuleDetector) Name() string { return ruleProvider }

func (d *RuleDetector) Detect(_ context.Context, in Input) (models.Signals, error) {
	text := in.Text
	lower := strings.ToLower(text)
	return models.Signals{
		models.SignalProfanity:  d.profanitySignal(text),
		models.SignalHateSpeech: hateSignal(lower),
		models.SignalSpam:       d.spamSignal(text, lower),
		models.SignalDangerous:  dangerousSignal(lower),
	}, nil
}

// profanitySignal reports on the 0..100 scale like the other rule signals.
func (d *RuleDetector) profanitySignal(text string) models.Signal {
	count := 0
	for _, re := range d.profanity {
		count += len(re.FindAllStringIndex(text, -1))
	}
	if count == 0 {
		return models.Signal{Provider: ruleProvider}
	}
	conf := 40 + float64(count)*10
	if conf > 100 {
		conf = 100
	}
	return models.Signal{
		Detected:   true,
		Confidence: conf,
		Categories: map[string]float64{"count": float64(count)},
		Provider:   ruleProvider,
	}
}

func hateSignal(lower string) models.Signal {
	hits := 0
	for _, kw := range defaultHateKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	if hits == 0 {
		return models.Signal{Provider: ruleProvider}
	}
	return models.Signal{
		Detected:   true,
		Confidence: 70,
		Categories: map[string]float64{"keywords": float64(hits)},
		Provider:   ruleProvider,
	}
}

func (d *RuleDetector) spamSignal(text, lower string) models.Signal {
	indicators := map[string]float64{}
	for _, kw := range d.spamKeywords {
		if strings.Contains(lower, kw) {
			indicators["keywords"]++
		}
	}
	for _, re := range d.blocked {
		if re.MatchString(text) {
			indicators["blockedPatterns"]++
		}
	}
	if isRepetitive(lower) {
		indicators["repetitiveText"] = 1
	}
	if hasSuspiciousLinks(text) {
		indicators["suspiciousLinks"] = 1
	}
	if strings.Count(text, "@") > 5 {
		indicators["massMentions"] = 1
	}
	if len(indicators) == 0 {
		return models.Signal{Provider: ruleProvider}
	}
	conf := 60 + 10*float64(len(indicators)-1)
	if indicators["blockedPatterns"] > 0 {
		conf = 100
	}
	if conf > 100 {
		conf = 100
	}
	return models.Signal{Detected: true, Confidence: conf, Categories: indicators, Provider: ruleProvider}
}

func dangerousSignal(lower string) models.Signal {
	cats := map[string]float64{}
	for cat, kws := range dangerousKeywords {
		for _, kw := range kws {
			if strings.Contains(lower, kw) {
				cats[cat] = 80
				break
			}
		}
	}
	if len(cats) == 0 {
		return models.Signal{Provider: ruleProvider}
	}
	return models.Signal{Detected: true, Confidence: 85, Categories: cats, Provider: ruleProvider}
}

// isRepetitive reports text of twenty or more characters whose distinct
// words make up less than 30% of all words.
func isRepetitive(lower string) bool {
	if len(lower) < 20 {
		return false
	}
	words := strings.Fields(lower)
	if len(words) == 0 {
		return false
	}
	unique := map[string]struct{}{}
	for _, w := range words {
		unique[w] = struct{}{}
	}
	return float64(len(unique))/float64(len(words)) < 0.3
}

func hasSuspiciousLinks(text string) bool {
	links := linkPattern.FindAllString(text, -1)
	if len(links) > 3 {
		return true
	}
	for _, link := range links {
		l := strings.ToLower(link)
		for _, domain := range suspiciousDomains {
			if strings.Contains(l, domain) {
				return true
			}
		}
	}
	return false
}
