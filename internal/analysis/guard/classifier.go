package guard

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cycore-edu/cycore/backend/internal/model/chat"
)

// Kind is the outcome class of a guardrail check.
type Kind string

const (
	Allow    Kind = "allow"
	Deny     Kind = "deny"
	Offtopic Kind = "offtopic"
)

// Verdict is the classifier decision for one user turn.
type Verdict struct {
	Kind    Kind
	Message string
}

// Blocked reports whether the turn must not reach the model.
func (v Verdict) Blocked() bool {
	return v.Kind != Allow
}

const denyMessage = "I can't help with offensive or illegal hacking. " +
	"Let's focus on defensive skills like phishing detection, strong passwords, and 2FA."

const offtopicMessage = "This is a **Cybersecurity Education Bot**. Kindly ask questions related to cybersecurity.\n\n" +
	"**You can ask about:**\n" +
	"• Spotting phishing emails/messages\n" +
	"• Creating strong passwords & using password managers\n" +
	"• Two-factor authentication (2FA)\n" +
	"• Privacy settings for phone/social media\n" +
	"• Securing your home Wi-Fi/router\n" +
	"• Recognising scams, malware & safe downloading\n" +
	"• Updates, backups, and account recovery"

var bannedTerms = []string{
	"how to hack", "crack", "ddos", "payload", "exploit", "rat", "keylogger", "bypass paywall",
}

// topicBuckets lists on-topic keywords by category. Matching is plain
// substring containment on the lowercased text.
var topicBuckets = map[string][]string{
	"awareness": {
		"phishing", "phishing awareness", "social media safety", "digital footprint",
		"cyber hygiene", "online privacy", "identity theft", "personal data protection",
		"safe browsing", "fake websites", "deepfake", "ai scams", "smishing", "vishing",
		"privacy", "breach", "scam", "malware", "virus", "ransomware",
		"update", "patch", "backup", "encryption", "social engineering",
		"email security", "password manager", "hacking prevention",
	},
	"auth_access": {
		"password", "passphrase", "2fa", "two-factor", "multi-factor", "mfa", "otp", "authenticator",
		"biometric authentication", "passwordless login", "single sign-on",
		"identity and access management", "privileged access management", "iam", "pam",
		"account", "login", "sign-in",
	},
	"network_internet": {
		"wifi", "router", "network", "vpn", "dns security", "ip spoofing", "man-in-the-middle attack",
		"ssl", "tls", "https", "secure connection",
	},
	"endpoint_os": {
		"patch management", "device hardening", "operating system security",
		"mobile security", "byod security", "endpoint protection", "anti-malware", "antivirus", "zero trust",
	},
	"org_process": {
		"security policy", "risk management", "incident management plan",
		"business continuity", "disaster recovery", "incident response",
	},
	"cloud_api": {
		"cloud security", "data residency", "shared responsibility model", "api security",
		"xdr", "extended detection and response", "edr", "endpoint detection and response",
		"mxdr", "managed xdr", "soar", "security orchestration automation and response",
	},
	"threats": {
		"botnet", "spyware", "keylogger", "trojan", "adware", "ddos", "denial of service",
		"zero-day exploit", "insider threat", "threat detection", "threat actor",
		"cyber attack", "cyber threat",
	},
	"frameworks": {
		"iso 27001", "gdpr", "pdpa", "information security", "cybersecurity", "infosec",
	},
	"education": {
		"cyber ethics", "digital citizenship", "safe online behavior",
		"security training", "cyberbullying prevention", "security awareness",
	},
	"common_typos": {
		"phising", "pishing", "fishing", "phish",
		"pasword", "passwrd", "pass word", "pasphrase",
		"malwear", "malwar", "ransomwear", "randsomware", "addware", "spy ware",
		"cyber security", "cibersecurity", "ciber", "cybersec", "infosecurity",
		"wi-fi", "wi fi", "fire wall", "anti virus", "anti-virus",
		"authentification", "authenication", "priviledge", "hygene",
	},
}

var topicKeywords = flattenTopics(topicBuckets)

// containsBanned reports whether any banned term occurs as a whole word.
func containsBanned(text string) bool {
	for _, term := range bannedTerms {
		if containsWord(text, term) {
			return true
		}
	}
	return false
}

// containsWord finds term in s with word boundaries on both sides. Word
// characters are Unicode letters, digits and underscore, so "cracké" does
// not contain the word "crack".
func containsWord(s, term string) bool {
	if term == "" {
		return false
	}
	for offset := 0; offset <= len(s)-len(term); {
		i := strings.Index(s[offset:], term)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(term)
		if boundaryAt(s, start) && boundaryAt(s, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		offset = start + size
	}
	return false
}

// boundaryAt reports whether a word boundary sits at byte index i.
func boundaryAt(s string, i int) bool {
	before, after := false, false
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:i])
		before = isWordRune(r)
	}
	if i < len(s) {
		r, _ := utf8.DecodeRuneInString(s[i:])
		after = isWordRune(r)
	}
	return before != after
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsNumber(r) || unicode.Is(unicode.Mn, r)
}

func flattenTopics(buckets map[string][]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, words := range buckets {
		for _, word := range words {
			if _, ok := seen[word]; ok {
				continue
			}
			seen[word] = struct{}{}
			out = append(out, word)
		}
	}
	sort.Strings(out)
	return out
}

// Classify decides whether a user turn may be answered. Banned terms are
// rejected on every turn; the topic check only gates a conversation opener.
func Classify(text string, history []chat.Message) Verdict {
	normalized := strings.ToLower(text)
	if containsBanned(normalized) {
		return Verdict{Kind: Deny, Message: denyMessage}
	}
	if len(history) > 0 {
		return Verdict{Kind: Allow}
	}
	if !OnTopic(normalized) {
		return Verdict{Kind: Offtopic, Message: offtopicMessage}
	}
	return Verdict{Kind: Allow}
}

// OnTopic reports whether text mentions any cybersecurity keyword.
func OnTopic(text string) bool {
	normalized := strings.ToLower(text)
	for _, word := range topicKeywords {
		if strings.Contains(normalized, word) {
			return true
		}
	}
	return false
}

// Categories returns the topic category names, sorted.
func Categories() []string {
	out := make([]string, 0, len(topicBuckets))
	for name := range topicBuckets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
