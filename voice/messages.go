package voice

// =============================================================================
// 🎯 WebSocket 消息协议
// =============================================================================
// 文本帧承载 JSON 控制/结果消息，二进制帧承载原始音频。

// 服务端消息类型
const (
	MsgConnected   = "connected"
	MsgTranscript  = "transcript"
	MsgLLMResponse = "llm_response"
	MsgError       = "error"
	MsgPong        = "pong"
)

// 客户端控制消息类型
const (
	MsgPing         = "ping"
	MsgEndUtterance = "end_utterance"
)

// ClientMessage 客户端发来的 JSON 控制消息.
type ClientMessage struct {
	Type string `json:"type"`
}

// ConnectedMessage 会话进入 ACTIVE 后的首条消息.
type ConnectedMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// TranscriptMessage 转写结果，中间结果与最终结果共用.
type TranscriptMessage struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	IsFinal    bool    `json:"is_final"`
	Confidence float64 `json:"confidence,omitempty"`
}

// LLMResponseMessage 模型回答，音频随后以二进制帧发送.
type LLMResponseMessage struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Tokens   int    `json:"tokens"`
}

// ErrorMessage 回合级错误，发送后会话保持 ACTIVE.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMessage ping 的应答.
type PongMessage struct {
	Type string `json:"type"`
}
