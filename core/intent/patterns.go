package intent

import "regexp"

// noisePatterns match utterances that are clearly greetings or filler. They
// only apply to very short text, so a real question with a filler prefix is
// never lost to the pre-filter.
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(嗯|哦|啊|好的|好|ok|okay|是的|对|没错|行|嗯嗯|哈哈|呵呵)`),
	regexp.MustCompile(`(?i)^(hello|hi|hey|你好|大家好|各位好|谢谢|感谢|辛苦了)`),
	regexp.MustCompile(`(?i)^(我[觉认]得|我[想要]说|其实|所以说|然后|接下来|那个)`),
}

// noiseLengthLimit is the rune count under which the noise patterns apply.
const noiseLengthLimit = 10

func isObviousNoise(text string, runeCount int) bool {
	if runeCount >= noiseLengthLimit {
		return false
	}
	for _, pattern := range noisePatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}
