package application

import "errors"

var (
	// ErrFundBusy 基金正被其他实例操作
	ErrFundBusy = errors.New("fund is busy")
	// ErrInvalidArgument 请求参数缺失或格式错误
	ErrInvalidArgument = errors.New("invalid argument")
)
