package model

// AssetMeta describes the bridged token on its native chain.
type AssetMeta struct {
	Address      string `json:"address"`
	Symbol       string `json:"symbol"`
	Denomination int32  `json:"denomination"`
}
