package classifier

import "regexp"

// pattern is a single weighted expression inside an intent's group.
// Weights are relative to the group's max weight; the strongest signal for
// an intent carries the full group weight.
type pattern struct {
	label  string
	weight float64
	re     *regexp.Regexp
}

type group struct {
	intent    Intent
	maxWeight float64
	patterns  []pattern
}

// defaultGroups is the declared pattern table, one group per resolvable
// intent, in priority order. Each group covers English, Hinglish, and
// Devanagari phrasings of the same semantic intent.
func defaultGroups() []group {
	return []group{
		{
			intent:    IntentIdentityVerification,
			maxWeight: 10,
			patterns: []pattern{
				{"id-primary", 10, regexp.MustCompile(`(?i)\b(?:registered (?:mobile|number)|opus\s*id|identity verification|verify (?:my|mera) (?:number|identity|account))\b`)},
				{"id-hinglish", 7, regexp.MustCompile(`(?i)(?:mera number|number se call|verification ke liye|naam confirm)`)},
				{"id-devanagari", 7, regexp.MustCompile(`(?:पहचान|मेरा नंबर|रजिस्टर्ड नंबर)`)},
			},
		},
		{
			intent:    IntentKYCStatus,
			maxWeight: 10,
			patterns: []pattern{
				{"kyc-primary", 10, regexp.MustCompile(`(?i)\b(?:kyc|approval|approve|account approv\w*|contractor approv\w*)\b`)},
				{"kyc-pending", 8, regexp.MustCompile(`(?i)\b(?:verification|verify|verified)\b.*\b(?:pending|nahi|nhi|hua)\b`)},
				{"kyc-hinglish", 7, regexp.MustCompile(`(?i)(?:approval.*nahi|account.*approve.*nahi|kyc.*pending|verification.*pending|id.*verify.*nahi|account.*active.*nahi|30 din)`)},
				{"kyc-devanagari", 8, regexp.MustCompile(`(?:के\s*वाई\s*सी|केवाईसी)`)},
				{"kyc-devanagari-pending", 7, regexp.MustCompile(`(?:वेरिफिकेशन|सत्यापन).*?(?:नहीं|नहि|पेंडिंग|लंबित)`)},
				{"kyc-devanagari-approval", 7, regexp.MustCompile(`(?:अप्रूव|स्वीकृत|स्वीकृति).*?(?:नहीं|नहि|पेंडिंग|लंबित)`)},
			},
		},
		{
			intent:    IntentPointRedemption,
			maxWeight: 10,
			patterns: []pattern{
				{"points-primary", 10, regexp.MustCompile(`(?i)\b(?:points?|redeem|redemption|cashback|paise)\b`)},
				{"points-hinglish", 8, regexp.MustCompile(`(?i)(?:point.*redeem.*nahi|cash.*nahi.*mil|paise.*withdraw.*nahi|redeem.*kar.*nahi|withdrawal issue|point.*problem)`)},
				{"points-devanagari", 8, regexp.MustCompile(`(?:पॉइंट|पॉइंट्स|अंक).*?(?:रिडीम|निकाल)`)},
				{"points-devanagari-cash", 7, regexp.MustCompile(`(?:कैश|नकद).*?(?:नहीं|नहि).*?(?:मिल|निकाल)|पैसे.*न(?:हीं|हि).*मिल`)},
			},
		},
		{
			intent:    IntentQRHistory,
			maxWeight: 10,
			patterns: []pattern{
				{"qr-primary", 10, regexp.MustCompile(`(?i)\b(?:qr|barcode|scan(?:ned|ning)?|coupon code)\b`)},
				{"qr-hinglish", 8, regexp.MustCompile(`(?i)(?:already.*scan|invalid.*code|code.*scan.*nahi|code.*(?:chal|kaam).*nahi|scan.*nahi.*ho)`)},
				{"qr-devanagari", 8, regexp.MustCompile(`(?:क्यू\s*आर|क्यूआर|बारकोड|स्कैन)`)},
				{"qr-devanagari-invalid", 7, regexp.MustCompile(`(?:अमान्य|इनवैलिड)\s*कोड|पहले\s*से\s*स्कैन`)},
			},
		},
		{
			intent:    IntentAccountBlock,
			maxWeight: 10,
			patterns: []pattern{
				{"block-primary", 10, regexp.MustCompile(`(?i)\b(?:blocked?|suspend(?:ed)?|account band)\b`)},
				{"block-hinglish", 8, regexp.MustCompile(`(?i)(?:login.*nahi|access.*nahi|app.*(?:open|khul).*nahi|login.*problem|login.*error|id.*block)`)},
				{"block-devanagari", 8, regexp.MustCompile(`(?:अकाउंट|एकाउंट|खाता).*?(?:ब्लॉक|बंद|लॉक|अवरुद्ध)`)},
				{"block-devanagari-login", 7, regexp.MustCompile(`लॉगिन.*?(?:नहीं|नहि|समस्या)|ऐप.*?(?:नहीं|नहि).*?(?:खुल|ओपन)`)},
			},
		},
	}
}
