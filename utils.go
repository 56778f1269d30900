package main

import (
	"crypto/md5"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"
)

const (
	appUserAgent    = "GoSocial/1.0"
	contentTypeJSON = "application/json"
)

func defaultIfEmpty(s, d string) string {
	if s != "" {
		return s
	}
	return d
}

func contentHash(text string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(text)))
}

func isAbsoluteURL(s string) bool {
	if !strings.HasPrefix(s, "https://") && !strings.HasPrefix(s, "http://") {
		return false
	}
	if _, err := url.Parse(s); err != nil {
		return false
	}
	return true
}

// randomBetween returns a random duration in [min, max] minutes.
func randomBetweenMinutes(min, max int) time.Duration {
	if max <= min {
		return time.Duration(min) * time.Minute
	}
	return time.Duration(min+rand.Intn(max-min+1)) * time.Minute
}

// truncateForPlatform shortens text to limit runes. When the text ends
// with a URL, the URL survives and the part before it gets shortened.
func truncateForPlatform(text string, limit int) string {
	if limit <= 0 || len([]rune(text)) <= limit {
		return text
	}
	if idx := strings.LastIndexAny(text, " \n"); idx > 0 {
		if link := text[idx+1:]; isAbsoluteURL(link) {
			head := []rune(strings.TrimSpace(text[:idx]))
			keep := limit - len([]rune(link)) - 2
			if keep > 0 && keep < len(head) {
				return string(head[:keep]) + "… " + link
			}
			if keep >= len(head) {
				return text
			}
			// No room for any head text, keep the link alone
			if len([]rune(link)) <= limit {
				return link
			}
		}
	}
	return string([]rune(text)[:limit-1]) + "…"
}
