package models

// ValueKind tags a QueriedValue.
type ValueKind int

const (
	ValueOther ValueKind = iota
	ValueNumber
	ValueBoolean
	ValueTime
)

// QueriedValue is a value extracted from a message, already classified by
// the extraction step.
type QueriedValue struct {
	Kind   ValueKind
	Number float64
	Bool   bool
	Time   Time
	// Raw is the decoded value as found in the payload.
	Raw interface{}
}

func NumberValue(raw interface{}, n float64) QueriedValue {
	return QueriedValue{Kind: ValueNumber, Number: n, Raw: raw}
}

func BooleanValue(b bool) QueriedValue {
	return QueriedValue{Kind: ValueBoolean, Bool: b, Raw: b}
}

func TimeValue(raw interface{}, t Time) QueriedValue {
	return QueriedValue{Kind: ValueTime, Time: t, Raw: raw}
}

func OtherValue(raw interface{}) QueriedValue {
	return QueriedValue{Kind: ValueOther, Raw: raw}
}

// QueriedData is one value extracted from a message by a plot path, with the
// concrete sub-path it was found at and its symbolic constant name, if any.
type QueriedData struct {
	Value        QueriedValue
	Path         string
	ConstantName string
}

// QueriedItem is one message matched by a plot path together with the values
// extracted from it.
type QueriedItem struct {
	Message     Message
	QueriedData []QueriedData
}

// ItemLookup maps plot path text to its queried items in arrival order.
type ItemLookup map[string][]QueriedItem
