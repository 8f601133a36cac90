package main

// Custom is the default scaffold's result shape. A submission is free
// to return any JSON-serializable value from Execute; the grader only
// compares the resulting JSON.
type Custom struct {
	Text   string `json:"text"`
	Number int    `json:"number"`
	List   []int  `json:"list"`
}

func Execute() any {
	return Custom{
		Text:   "Hello, World!",
		Number: 42,
		List:   []int{-42, 420},
	}
}
