// Package llm 定义统一的 LLM Provider 接口与共享请求/响应类型。
//
// 子包：
//   - providers  各提供方适配实现（openai / anthropic / gemini）
//   - embedding  文本向量化
//   - router     成本/复杂度模型路由
//   - speech     实时 STT 与 TTS
//   - cache      语义响应缓存
package llm
