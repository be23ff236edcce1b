package timestamps

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SystemPrompt is sent as the system message of every request.
const SystemPrompt = "You are a helpful assistant. Output valid JSON only."

const stepsPrompt = "以下の動画字幕から、料理の重要な手順（材料を切る、炒める、煮込むなど）を抽出し、\n" +
	"JSON形式で出力してください。雑談は無視し、手順は5〜8個に絞ってください。\n" +
	"フォーマット: { \"steps\": [ { \"time\": 秒数(int), \"text\": \"短い手順名\" } ] }\n\n" +
	"字幕データ:\n%s"

const timedNote = "（各字幕の先頭の [数字] はその字幕の開始秒数です。time にはこの値を使ってください。）\n"

// BuildPrompt embeds transcript text into the cooking-steps prompt. With
// timed set the text is expected to carry "[seconds]" cue markers.
func BuildPrompt(text string, timed bool) string {
	if timed {
		return fmt.Sprintf(stepsPrompt, timedNote+text)
	}
	return fmt.Sprintf(stepsPrompt, text)
}

// PromptVersion fingerprints the prompt templates so cached results are
// invalidated when the wording changes.
func PromptVersion(timed bool) string {
	sum := sha256.Sum256([]byte(SystemPrompt + "\x00" + BuildPrompt("", timed)))
	return hex.EncodeToString(sum[:8])
}
