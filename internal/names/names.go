// Package names picks friendly guest display names for people who join a
// call without choosing one.
package names

import (
	"crypto/rand"
	"math/big"
	"strings"
)

var adjectives = []string{
	"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "silly", "jolly", "cozy", "shiny",
	"golden", "silver", "crimson", "emerald", "bright", "gentle", "brave", "calm", "swift", "quiet",
	"bouncy", "fuzzy", "plucky", "merry", "peppy", "misty", "sunny", "dapper", "nimble", "witty",
}

var animals = []string{
	"kitten", "puppy", "bunny", "panda", "koala", "fox", "otter", "hedgehog", "squirrel", "hamster",
	"fawn", "lamb", "raccoon", "beaver", "seahorse", "dolphin", "narwhal", "penguin", "flamingo", "pelican",
	"sparrow", "robin", "toucan", "parrot", "owl", "lynx", "badger", "heron", "walrus", "gecko",
}

// Guest returns a name such as "Sleepy Otter".
func Guest() string {
	return title(pick(adjectives)) + " " + title(pick(animals))
}

// Initials returns up to two upper-case letters for a display name, used as
// the avatar reference when nothing better is known.
func Initials(name string) string {
	var out []rune
	for _, w := range strings.Fields(name) {
		out = append(out, []rune(strings.ToUpper(w))[0])
		if len(out) == 2 {
			break
		}
	}
	return string(out)
}

func pick(words []string) string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		return words[0]
	}
	return words[n.Int64()]
}

func title(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + w[1:]
}
