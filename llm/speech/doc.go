// Copyright (c) VoxFlow Authors.
// Licensed under the MIT License.

/*
包 speech 提供语音会话的识别与合成接入层.

# 语音识别 (STT)

LiveTranscriber 建立流式识别会话，音频以二进制帧推送，识别结果
通过事件通道返回。Deepgram 实现对接实时 WebSocket API
（/v1/listen），中间结果即时转发，每个话语恰好产出一个最终结果。
流中途不可恢复错误不重试，发出带错误的事件后关闭通道。

# 语音合成 (TTS)

Synthesizer 将文本转换为 MP3 音频。Google Cloud TTS 为主引擎，
ElevenLabs 为冷备用：启动时按凭证存在性选定一次，运行期间不做
逐请求切换。SSML 仅 Google 支持，ElevenLabs 显式拒绝。
*/
package speech
