// Package prompt assembles the fixed analysis instructions into model
// requests. Everything here is a pure function of its inputs.
package prompt

import (
	"fmt"

	"github.com/as950118/customer-service-coaching/internal/models"
)

const systemPrompt = "당신은 고객 상담 품질을 분석하는 전문가입니다."

const analysisInstructions = `다음 상담 내용을 분석하여 개선이 필요한 사항들을 도출해주세요.

다음 항목들을 중심으로 분석해주세요:
1. 고객 응대 태도
2. 문제 해결 능력
3. 커뮤니케이션 스킬
4. 개선이 필요한 구체적인 사항

분석 결과는 아래 JSON 형식으로 작성해주세요:
{
  "summary": "상담 전체 요약",
  "customer_service_attitude": {"score": 1, "strengths": [], "weaknesses": [], "details": ""},
  "problem_solving": {"score": 1, "strengths": [], "weaknesses": [], "details": ""},
  "communication": {"score": 1, "strengths": [], "weaknesses": [], "details": ""},
  "improvement_recommendations": [{"category": "", "issue": "", "recommendation": "", "priority": "high|medium|low"}],
  "overall_score": 1,
  "overall_feedback": "종합 피드백"
}

각 score는 1에서 10 사이의 정수입니다.`

const transcriptionInstruction = "이 오디오/비디오 파일의 대화 내용을 정확하게 텍스트로 전사해주세요. 분석은 하지 말고 전사만 해주세요."

// System returns the system-role text for analysis requests.
func System() string { return systemPrompt }

// Transcription returns the transcription-only instruction used when
// transcription is delegated to the model.
func Transcription() string { return transcriptionInstruction }

// Analysis builds the full analysis prompt. The content is embedded
// verbatim; transcribed inputs are labeled as such so the model knows it
// is reading machine-recovered text.
func Analysis(title, content string, modality models.Modality) string {
	label := "상담 내용"
	if modality == models.ModalityAudio || modality == models.ModalityVideo {
		label = "상담 내용 (전사본)"
	}
	return fmt.Sprintf("%s\n\n상담 제목: %s\n\n%s:\n%s", analysisInstructions, title, label, content)
}
