package speech

import "go.uber.org/zap"

// SelectSynthesizer 在启动时选定 TTS 引擎：Google 凭证存在则用 Google，
// 否则退回 ElevenLabs。选择只做一次，运行期间不做逐请求故障切换.
func SelectSynthesizer(google GoogleTTSConfig, eleven ElevenLabsConfig, logger *zap.Logger) Synthesizer {
	if google.APIKey != "" {
		logger.Info("tts engine selected", zap.String("engine", "google"))
		return NewGoogleTTSProvider(google)
	}

	logger.Info("tts engine selected", zap.String("engine", "elevenlabs"),
		zap.String("reason", "google credentials absent"))
	return NewElevenLabsProvider(eleven)
}
