package provider

import (
	"context"
	"testing"
)

const seoulHeatFixture = `
<html><body><div id="content">
<p>조회 기간: 2024.06.01 ~ 2024.06.10</p>
<p>해당 기간의 평균 열량은 42.507 MJ/Nm³ 입니다.</p>
</div></body></html>`

const seoulPriceFixture = `
<html><body><div class="tblgas"><table>
<tr><th>구분</th><th>전월</th><th>당월</th></tr>
<tr><th scope="row">주택취사용</th><td> 15.1234 </td><td> 16.0212 </td></tr>
<tr><th scope="row">업무난방용</th><td> 14.9001 </td><td> 15.8105 </td></tr>
</table></div></body></html>`

func TestParseSeoulHeatHTML(t *testing.T) {
	v, err := ParseSeoulHeatHTML(seoulHeatFixture)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v != 42.507 {
		t.Errorf("want 42.507 got %v", v)
	}

	if _, err := ParseSeoulHeatHTML("<html><body>nothing here</body></html>"); err == nil {
		t.Error("expected error for page without heat figure")
	}
}

func TestParseSeoulPriceHTML(t *testing.T) {
	prev, curr, err := ParseSeoulPriceHTML(seoulPriceFixture)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if prev != 15.1234 || curr != 16.0212 {
		t.Errorf("want 15.1234/16.0212 got %v/%v", prev, curr)
	}

	if _, _, err := ParseSeoulPriceHTML("<table><tr><th>난방</th><td>1</td></tr></table>"); err == nil {
		t.Error("expected error when cooking row is missing")
	}
}

const kooneHeatFixture = `throw 'allowScriptTagRemoting is false.';
var s0="<table><tr><td>평균열량</td><td>42.507 MJ/Nm<sup>3</sup></td></tr></table>";
DWREngine._handleResponse('1234_1717000000000', s0);`

const koonePriceFixture = `throw 'allowScriptTagRemoting is false.';
var s5="etc";
var s6="22.5084";
DWREngine._handleResponse('1234_1717000000000', s6);`

func TestParseKooneHeatResponse(t *testing.T) {
	v, err := ParseKooneHeatResponse(kooneHeatFixture)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v != 42.507 {
		t.Errorf("want 42.507 got %v", v)
	}

	if _, err := ParseKooneHeatResponse(`var s1="no heat";`); err == nil {
		t.Error("expected error when s0 is missing")
	}
}

func TestParseKoonePriceResponse(t *testing.T) {
	v, err := ParseKoonePriceResponse(koonePriceFixture)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v != 22.5084 {
		t.Errorf("want 22.5084 got %v", v)
	}

	if _, err := ParseKoonePriceResponse(`var s6="not-a-number"`); err == nil {
		t.Error("expected error for malformed s6")
	}
}

func TestKooneFamilyRegions(t *testing.T) {
	cases := []struct {
		key    string
		region string
	}{
		{"incheon_gas", "1"},
		{"gyeonggi_gas", "2"},
	}
	for _, tc := range cases {
		g, ok := Get(tc.key, Options{})
		if !ok {
			t.Fatalf("gateway %q not registered", tc.key)
		}
		dwr, ok := g.(*KooneDWR)
		if !ok {
			t.Fatalf("gateway %q: want *KooneDWR, got %T", tc.key, g)
		}
		if dwr.region != tc.region {
			t.Errorf("gateway %q: want region %q got %q", tc.key, tc.region, dwr.region)
		}
		if dwr.ID() != tc.key {
			t.Errorf("gateway %q: ID() = %q", tc.key, dwr.ID())
		}
	}
}

const tariffTextFixture = `
City Gas Tariff Sheet, June 2024

Previous month heat content: 42.507 MJ/Nm3
Current month heat content: 43.021 MJ/Nm3
Previous month unit price: 15.1234 KRW/MJ
Current month unit price: 16.0212 KRW/MJ
`

func TestParseTariffText(t *testing.T) {
	heat, price, err := ParseTariffText(tariffTextFixture)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if heat.PrevMonth != 42.507 || heat.CurrMonth != 43.021 {
		t.Errorf("heat mismatch: %+v", heat)
	}
	if price.PrevMonth != 15.1234 || price.CurrMonth != 16.0212 {
		t.Errorf("price mismatch: %+v", price)
	}

	if _, _, err := ParseTariffText("Previous month heat content: 42.5"); err == nil {
		t.Error("expected error for incomplete sheet")
	}
}

func TestRegistry(t *testing.T) {
	for _, key := range []string{"manual", "seoul_gas", "incheon_gas", "gyeonggi_gas", "tariff_pdf"} {
		if _, ok := Get(key, Options{}); !ok {
			t.Errorf("gateway %q not registered", key)
		}
	}
	if _, ok := Get("nope", Options{}); ok {
		t.Error("unknown key should not resolve")
	}

	list := List()
	if len(list) < 5 {
		t.Errorf("expected at least 5 gateways, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Key >= list[i].Key {
			t.Errorf("list not sorted: %s >= %s", list[i-1].Key, list[i].Key)
		}
	}
}

func TestManualNeverReturnsData(t *testing.T) {
	g, ok := Get("manual", Options{})
	if !ok {
		t.Fatal("manual gateway not registered")
	}
	heat, err := g.FetchHeatData(context.Background())
	if heat != nil || err != nil {
		t.Errorf("manual heat: want nil,nil got %v,%v", heat, err)
	}
	price, err := g.FetchPriceData(context.Background())
	if price != nil || err != nil {
		t.Errorf("manual price: want nil,nil got %v,%v", price, err)
	}
}

func TestTariffPDFWithoutPathIsAbsent(t *testing.T) {
	g := &TariffPDF{}
	heat, err := g.FetchHeatData(context.Background())
	if heat != nil || err != nil {
		t.Errorf("want nil,nil got %v,%v", heat, err)
	}
}
