package intake

import "testing"

func TestAttachmentWord(t *testing.T) {
	cases := []struct {
		count int
		want  string
	}{
		{1, "вложение"},
		{2, "вложения"},
		{3, "вложения"},
		{4, "вложения"},
		{5, "вложений"},
		{7, "вложений"},
		{11, "вложений"},
		{12, "вложений"},
		{14, "вложений"},
		{21, "вложение"},
		{22, "вложения"},
		{25, "вложений"},
		{111, "вложений"},
	}

	for _, tc := range cases {
		if got := attachmentWord(tc.count); got != tc.want {
			t.Errorf("attachmentWord(%d) = %q, want %q", tc.count, got, tc.want)
		}
	}
}
