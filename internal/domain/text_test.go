package domain

import "testing"

func TestTextResolve(t *testing.T) {
	bilingual := Text{En: "Sourdough Loaf", Ar: "خبز الساوردو"}

	cases := []struct {
		name   string
		text   Text
		locale string
		want   string
	}{
		{name: "english", text: bilingual, locale: "en", want: "Sourdough Loaf"},
		{name: "arabic", text: bilingual, locale: "ar", want: "خبز الساوردو"},
		{name: "regional arabic", text: bilingual, locale: "ar-JO", want: "خبز الساوردو"},
		{name: "unknown locale falls back to english", text: bilingual, locale: "fr", want: "Sourdough Loaf"},
		{name: "empty locale", text: bilingual, locale: "", want: "Sourdough Loaf"},
		{name: "arabic missing falls back", text: Text{En: "Bagel"}, locale: "ar", want: "Bagel"},
		{name: "english missing falls back", text: Text{Ar: "كعك"}, locale: "en", want: "كعك"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.text.Resolve(tc.locale); got != tc.want {
				t.Fatalf("Resolve(%q) = %q, want %q", tc.locale, got, tc.want)
			}
		})
	}
}

func TestTextEmpty(t *testing.T) {
	if !(Text{En: "  ", Ar: ""}).Empty() {
		t.Fatalf("whitespace-only text should be empty")
	}
	if (Text{En: "x"}).Empty() {
		t.Fatalf("non-empty text reported empty")
	}
}
