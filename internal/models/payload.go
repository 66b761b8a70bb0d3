package models

// Dimensions is a pixel width/height pair.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Band is the half-open row range [Top, Bottom) of the source image a payload
// was cut from.
type Band struct {
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
}

// ImagePayload is one upload-ready image for the multimodal model.
type ImagePayload struct {
	Label    string     `json:"label"`
	DataURL  string     `json:"data_url"`
	MIMEType string     `json:"mime_type"`
	Bytes    []byte     `json:"-"`
	Original Dimensions `json:"original"`
	Output   Dimensions `json:"output"`
	Quality  int        `json:"quality"`
	Band     Band       `json:"band"`
}
