// Package providers 提供各 LLM 提供方的通用类型与错误映射。
//
// 具体 Provider 实现位于子包 openai、anthropic、gemini。
package providers
