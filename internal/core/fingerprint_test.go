package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanSubject(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		want    string
	}{
		{"no prefix", "Budget Review", "Budget Review"},
		{"reply prefix", "Re: Budget Review", "Budget Review"},
		{"forward prefix", "Fwd: Budget Review", "Budget Review"},
		{"fw prefix", "FW: Budget Review", "Budget Review"},
		{"stacked prefixes", "Re: Fwd: Re: Budget Review", "Budget Review"},
		{"case insensitive", "rE: fWD: Budget Review", "Budget Review"},
		{"leading whitespace", "  Re:   Budget Review  ", "Budget Review"},
		{"prefix-like word kept", "Regarding the budget", "Regarding the budget"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanSubject(tt.subject))
		})
	}
}

func TestIsReplyOrForward(t *testing.T) {
	assert.True(t, IsReplyOrForward("Re: hello"))
	assert.True(t, IsReplyOrForward("Fwd: hello"))
	assert.True(t, IsReplyOrForward("fw: hello"))
	assert.False(t, IsReplyOrForward("hello"))
	assert.False(t, IsReplyOrForward("Regards"))
}

func TestFingerprintEmailDeterministic(t *testing.T) {
	email := &Email{
		MessageID: "<abc-123@mail.example.com>",
		From:      "alice@example.com",
		To:        []string{"bob@example.com", "carol@example.com"},
		Subject:   "Re: Quarterly planning",
		Body:      "Here is the plan for next quarter.",
	}

	first := FingerprintEmail(email)
	second := FingerprintEmail(email)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first.Identity)
	assert.NotEmpty(t, first.Content)
	assert.NotEmpty(t, first.RecipientSet)
	assert.Equal(t, "Quarterly planning", first.CleanSubject)
	assert.True(t, first.IsForward)
}

func TestIdentityFingerprintEmptyMessageID(t *testing.T) {
	assert.Empty(t, IdentityFingerprint(""))
	assert.NotEmpty(t, IdentityFingerprint("<x@y>"))
}

func TestRecipientFingerprintOrderInsensitive(t *testing.T) {
	a := &Email{
		From:    "alice@example.com",
		To:      []string{"bob@example.com", "carol@example.com"},
		Subject: "Weekly notes",
	}
	b := &Email{
		From:    "alice@example.com",
		To:      []string{"Carol@Example.com"},
		Cc:      []string{"BOB@example.com"},
		Subject: "Re: Weekly notes",
	}

	assert.Equal(t, RecipientFingerprint(a), RecipientFingerprint(b))
}

func TestRecipientFingerprintNoRecipients(t *testing.T) {
	email := &Email{From: "alice@example.com", Subject: "hi"}
	assert.Empty(t, RecipientFingerprint(email))
}

func TestContentFingerprintTruncatesBody(t *testing.T) {
	long := make([]byte, 4000)
	for i := range long {
		long[i] = 'a'
	}
	base := &Email{From: "alice@example.com", Subject: "report", Body: string(long)}
	extended := &Email{From: "alice@example.com", Subject: "report", Body: string(long) + "tail"}

	// Only the leading slice of the body participates in the key
	assert.Equal(t, ContentFingerprint(base), ContentFingerprint(extended))
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("The quick brown fox, the QUICK fox!")

	_, hasQuick := tokens["quick"]
	_, hasBrown := tokens["brown"]
	_, hasThe := tokens["the"]
	_, hasFox := tokens["fox"]

	assert.True(t, hasQuick)
	assert.True(t, hasBrown)
	assert.False(t, hasThe, "short words are dropped")
	assert.False(t, hasFox, "three-letter words are dropped")
}

func TestJaccard(t *testing.T) {
	a := Tokenize("budget review next quarter planning")
	b := Tokenize("budget review next quarter planning")
	c := Tokenize("completely different content here")

	assert.InDelta(t, 1.0, Jaccard(a, b), 1e-9)
	assert.Equal(t, 0.0, Jaccard(a, c))
	assert.Equal(t, 0.0, Jaccard(nil, nil))
}

func TestContainment(t *testing.T) {
	original := Tokenize("please review the budget numbers before friday")
	forward := Tokenize("forwarding this along please review the budget numbers before friday thanks")

	require.NotEmpty(t, original)
	assert.InDelta(t, 1.0, Containment(original, forward), 1e-9)
	assert.Equal(t, 0.0, Containment(nil, forward))
}
