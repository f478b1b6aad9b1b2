package model

// 记录类型
const (
	KindMask   = "mask"
	KindResult = "result"
)

// MaskRecord 已处理图片的掩码记录
type MaskRecord struct {
	MD5         string   `json:"md5"`
	ImageName   string   `json:"image_name"`
	ImageURL    string   `json:"image_url"`
	MaskURL     string   `json:"mask_url"`
	MaskKey     string   `json:"mask_key"`
	Width       int      `json:"width"`
	Height      int      `json:"height"`
	Category    string   `json:"category"`
	BoundingBox BBox     `json:"hair_bounding_box"`
	Coverage    float64  `json:"coverage"`
	Labels      []string `json:"segmentation_metadata"`
	Kind        string   `json:"kind"` // KindMask, KindResult
	Timestamp   int64    `json:"timestamp"`
}

// BBox 边界框，闭区间坐标
type BBox struct {
	MinX   int `json:"min_x"`
	MinY   int `json:"min_y"`
	MaxX   int `json:"max_x"`
	MaxY   int `json:"max_y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RecolorResult 染色结果
type RecolorResult struct {
	PNG       []byte  `json:"-"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Color     string  `json:"color"`
	Strength  float64 `json:"strength"`
	MaskMD5   string  `json:"mask_md5,omitempty"`
	ResultURL string  `json:"result_url,omitempty"`
	BaseBox   BBox    `json:"base_bounding_box"`
}

// MaskResponse 掩码接口响应
type MaskResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    *MaskRecord `json:"data,omitempty"`
}

// MaskListResponse 掩码列表响应
type MaskListResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Data    []*MaskRecord `json:"data"`
}

// RecolorResponse 保存染色结果时的响应
type RecolorResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    *RecolorResult `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
