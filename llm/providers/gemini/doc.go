// Copyright (c) VoxFlow Authors.
// Licensed under the MIT License.

/*
# 概述

包 gemini 提供 Google Gemini 模型的 Provider 适配实现。该包直接对接
Gemini REST API（generativelanguage.googleapis.com），自行处理请求构建
与响应解析。

路由器将 "simple" 复杂度的查询发送到此提供者（gemini-flash），
复杂度分类器本身也通过此提供者调用。

# 协议差异

  - 使用 x-goog-api-key 请求头认证
  - 角色为 user/model 而非 user/assistant
  - system 消息放在 systemInstruction 字段
  - 端点为 /v1beta/models/{model}:generateContent
  - Token 用量在 usageMetadata 字段
*/
package gemini
