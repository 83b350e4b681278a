package main

// Record is the full-record representation of a collected message, printed
// one JSON object per line. Field names match the raw SQS API response so
// records stay greppable against AWS CLI output.
type Record struct {
	Body          string            `json:"Body"`
	ReceiptHandle string            `json:"ReceiptHandle"`
	MD5OfBody     string            `json:"MD5OfBody"`
	MessageId     string            `json:"MessageId"`
	Attributes    map[string]string `json:"Attributes"`
}

// SendAck is the destination queue's acknowledgment for a forwarded message,
// printed so operators can correlate forwarded copies with their new IDs.
type SendAck struct {
	MD5OfMessageBody string `json:"MD5OfMessageBody"`
	MessageId        string `json:"MessageId"`
}

// Sinks selects which side effects disposition performs for each collected
// message.
type Sinks struct {
	Stdout     bool // print message bodies
	FullRecord bool // with Stdout, print the full Record instead of the body
	Forward    bool // send the body to the destination queue
	Drain      bool // delete each message after its other side effects
	DrainFirst bool // delete every message before any printing/forwarding
}
