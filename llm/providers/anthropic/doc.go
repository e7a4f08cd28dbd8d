// Copyright (c) VoxFlow Authors.
// Licensed under the MIT License.

/*
# 概述

包 claude 提供 Anthropic Claude 系列模型的 Provider 适配实现。
Claude API 与 OpenAI 格式有显著差异，本包负责将统一请求映射到
Anthropic Messages API（/v1/messages），并处理认证与消息格式转换。

路由器将代码相关、超长和 "complex" 复杂度的查询发送到此提供者
（claude-haiku）。

# 协议差异

  - 认证使用 x-api-key 请求头（非 Bearer Token）
  - system 消息从 messages 数组中提取，单独传递到 system 字段
  - 消息 content 为数组形式（text 块）
  - max_tokens 为必填字段
  - Token 用量字段为 input_tokens / output_tokens
  - 过载时返回 529 状态码
*/
package claude
