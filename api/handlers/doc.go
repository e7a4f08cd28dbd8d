// Copyright (c) VoxFlow Authors.
// Licensed under the MIT License.

// Package handlers 实现 VoxFlow 的 HTTP 与 WebSocket 处理器:
// 会话管理（POST/DELETE /v1/sessions）、语音 WebSocket 接入
// （/ws/voice）、健康检查与运维统计端点。
//
// 统一响应结构 Response{success, data, error, timestamp}，
// 错误通过 types.Error 映射到 HTTP 状态码。
package handlers
