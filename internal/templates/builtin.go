package templates

import (
	"embed"
	"fmt"
)

//go:embed html/*.html
var htmlFS embed.FS

var builtinFiles = map[DocumentType]string{
	TypeLease:           "html/lease.html",
	TypeAgreement:       "html/agreement.html",
	TypePowerOfAttorney: "html/power_of_attorney.html",
}

func builtinSchemas() []*Schema {
	return []*Schema{
		{
			Type:        TypeLease,
			Name:        "임대차계약서",
			Description: "주택 또는 상가 건물의 임대차 계약서",
			Keywords:    []string{"임대차", "임대", "임차", "전세", "월세", "집", "빌리", "세입자", "집주인", "lease"},
			Tags:        []string{"부동산", "계약"},
			Fields: []Field{
				{Name: "임대인", Variable: "lessor_name", Required: true, Kind: KindPerson, Aliases: []string{"집주인", "임대인 성명"}, Description: "집을 빌려주는 사람"},
				{Name: "임차인", Variable: "lessee_name", Required: true, Kind: KindPerson, Aliases: []string{"세입자", "임차인 성명"}, Description: "집을 빌리는 사람"},
				{Name: "부동산주소", Variable: "property_address", Required: true, Kind: KindAddress, Aliases: []string{"주소", "소재지", "부동산 주소"}, Description: "임대 목적물의 소재지"},
				{Name: "보증금", Variable: "deposit", Required: true, Kind: KindAmount, Aliases: []string{"전세금", "임대보증금", "전세"}, Description: "임대차 보증금"},
				{Name: "계약기간", Variable: "lease_period", Required: true, Kind: KindPeriod, Aliases: []string{"기간", "임대차기간", "임대기간"}, Description: "임대차 기간"},
				{Name: "월세", Variable: "monthly_rent", Kind: KindAmount, Aliases: []string{"차임", "월차임"}, Description: "매월 지급하는 차임"},
				{Name: "특약사항", Variable: "special_terms", Kind: KindText, Aliases: []string{"특약"}, Description: "당사자 간 특별 약정"},
				{Name: "계약일", Variable: "contract_date", Kind: KindDate, Aliases: []string{"계약일자", "작성일"}, Description: "계약 체결일"},
			},
		},
		{
			Type:        TypeAgreement,
			Name:        "합의서",
			Description: "분쟁 당사자 간 합의 내용을 정리한 합의서",
			Keywords:    []string{"합의", "합의서", "화해", "분쟁", "배상", "agreement"},
			Tags:        []string{"분쟁", "합의"},
			Fields: []Field{
				{Name: "갑", Variable: "party_a", Required: true, Kind: KindPerson, Aliases: []string{"갑 성명", "당사자 갑"}, Description: "합의 당사자 갑"},
				{Name: "을", Variable: "party_b", Required: true, Kind: KindPerson, Aliases: []string{"을 성명", "당사자 을"}, Description: "합의 당사자 을"},
				{Name: "합의사항", Variable: "terms", Required: true, Kind: KindText, Aliases: []string{"합의내용", "합의 내용"}, Description: "합의한 내용"},
				{Name: "합의일자", Variable: "agreement_date", Kind: KindDate, Aliases: []string{"합의일"}, Description: "합의한 날짜"},
				{Name: "갑주소", Variable: "party_a_address", Kind: KindAddress, Aliases: []string{"갑 주소"}, Description: "갑의 주소"},
				{Name: "을주소", Variable: "party_b_address", Kind: KindAddress, Aliases: []string{"을 주소"}, Description: "을의 주소"},
				{Name: "특약사항", Variable: "special_terms", Kind: KindText, Aliases: []string{"특약"}, Description: "기타 약정"},
			},
		},
		{
			Type:        TypePowerOfAttorney,
			Name:        "위임장",
			Description: "대리인에게 법률 행위를 위임하는 위임장",
			Keywords:    []string{"위임", "위임장", "대리", "대리인", "권한", "power of attorney"},
			Tags:        []string{"대리", "위임"},
			Fields: []Field{
				{Name: "위임인", Variable: "principal_name", Required: true, Kind: KindPerson, Aliases: []string{"위임하는 사람"}, Description: "권한을 맡기는 사람"},
				{Name: "수임인", Variable: "agent_name", Required: true, Kind: KindPerson, Aliases: []string{"대리인", "위임받는 사람"}, Description: "권한을 위임받는 사람"},
				{Name: "위임사항", Variable: "delegated_matters", Required: true, Kind: KindText, Aliases: []string{"위임내용", "위임 내용", "위임 사항"}, Description: "위임하는 업무"},
				{Name: "위임인주소", Variable: "principal_address", Kind: KindAddress, Aliases: []string{"위임인 주소"}, Description: "위임인의 주소"},
				{Name: "수임인주소", Variable: "agent_address", Kind: KindAddress, Aliases: []string{"수임인 주소", "대리인 주소"}, Description: "수임인의 주소"},
				{Name: "위임일자", Variable: "delegation_date", Kind: KindDate, Aliases: []string{"위임일"}, Description: "위임한 날짜"},
			},
		},
	}
}

func builtinHTML(t DocumentType) (string, error) {
	name, ok := builtinFiles[t]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, t)
	}
	b, err := htmlFS.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to read embedded template %s: %w", name, err)
	}
	return string(b), nil
}
