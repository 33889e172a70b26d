// Package resp 统一输出 JSON 响应。
// 成功响应直接输出业务数据，失败响应统一为 {"error": ..., "message": ...}。
package resp

import (
	"encoding/json"
	"net/http"
)

// ErrorBody 错误响应体
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// JSON 以指定状态码输出 JSON
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK 输出 200
func OK(w http.ResponseWriter, v any) {
	JSON(w, http.StatusOK, v)
}

// Created 输出 201
func Created(w http.ResponseWriter, v any) {
	JSON(w, http.StatusCreated, v)
}

// Error 输出结构化错误
func Error(w http.ResponseWriter, status int, title, message string) {
	JSON(w, status, ErrorBody{Error: title, Message: message})
}
