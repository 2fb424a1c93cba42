package intake

// attachmentWord picks the Russian plural form of "вложение" for the given
// count: 1 вложение, 3 вложения, 7 вложений, with the 11-14 exception.
func attachmentWord(count int) string {
	if count < 0 {
		count = -count
	}

	switch {
	case count%100 >= 11 && count%100 <= 14:
		return "вложений"
	case count%10 == 1:
		return "вложение"
	case count%10 >= 2 && count%10 <= 4:
		return "вложения"
	default:
		return "вложений"
	}
}
