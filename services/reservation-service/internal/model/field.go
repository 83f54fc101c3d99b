package model

type Field struct {
	ID           string
	Name         string
	Sport        string
	PricePerHour int64
	// OpenTime and CloseTime are "HH:MM". Both empty means no operating hours.
	OpenTime  string
	CloseTime string
	Active    bool
}

func (f Field) HasHours() bool {
	return f.OpenTime != "" || f.CloseTime != ""
}
