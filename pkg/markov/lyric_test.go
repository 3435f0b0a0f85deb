package markov

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLyricJoin(t *testing.T) {
	lyric := NewLyric([]Token{
		NewToken("大きな", "オオキナ", "オーキナ"),
		NewToken("、", "、", "、"),
		NewToken("空", "ソラ", "ソラ"),
	})

	assert.Equal(t, "大きな空", lyric.Join())
	assert.Equal(t, "大きな、空", lyric.String())
	assert.Equal(t, "オオキナソラ", lyric.Reading())
	assert.Equal(t, 6, lyric.Length(MetricMora))
	assert.Equal(t, 5, lyric.Length(MetricSyllable))
}

func TestLyricCopiesTokens(t *testing.T) {
	tokens := []Token{NewToken("空", "ソラ", "ソラ")}
	lyric := NewLyric(tokens)
	tokens[0] = NewToken("海", "ウミ", "ウミ")

	got := lyric.Tokens()
	assert.Equal(t, "空", got[0].Word)

	got[0] = NewToken("山", "ヤマ", "ヤマ")
	assert.Equal(t, "空", lyric.Tokens()[0].Word)
}

func TestLyricEmpty(t *testing.T) {
	lyric := NewLyric(nil)
	assert.Empty(t, lyric.Join())
	assert.Empty(t, lyric.String())
	assert.Zero(t, lyric.Length(MetricMora))
}
