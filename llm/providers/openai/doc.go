// Copyright (c) VoxFlow Authors.
// Licensed under the MIT License.

// Package openai 实现基于 OpenAI Chat Completions API 的 LLM 提供者。
//
// 路由器将 "medium" 复杂度的查询发送到此提供者 (gpt-4o-mini)。
package openai
