package tables

import (
	"github.com/JonMunkholm/reconcile/internal/core"
)

// Monthly payroll extracts. Each row is one person's figures for one month;
// a file must only contain the month before the current one unless it is
// imported with overwrite.

func init() {
	registerSocialInsurance()
	registerAttendanceDeduction()
	registerDeposit()
	registerFriendCirclePayment()
}

func money(name, column string) core.FieldSpec {
	return core.FieldSpec{Name: name, Column: column, Type: core.FieldNumeric, DefaultZero: true}
}

func personName() core.FieldSpec {
	return core.FieldSpec{Name: "name", Column: "姓名", RequiredColumn: true, Normalizer: NormalizeName}
}

func yearMonth() core.FieldSpec {
	return core.FieldSpec{Name: "yearMonth", Column: "年月", Aliases: []string{"月份", "所属月份"}, Type: core.FieldPeriod, RequiredColumn: true}
}

func registerSocialInsurance() {
	personal := money("personalTotal", "社保个人合计")
	personal.Policy = core.MergeDerivedSum
	personal.Components = []string{"personalMedical", "personalPension", "personalUnemployment"}

	company := money("companyTotal", "公司承担合计")
	company.Policy = core.MergeDerivedSum
	company.Components = []string{"companyMedical", "companyPension", "companyUnemployment", "companyInjury"}

	grand := money("grandTotal", "总合计")
	grand.Policy = core.MergeDerivedSum
	grand.Components = []string{"personalTotal", "companyTotal"}
	grand.Always = true

	core.Register(core.EntitySchema{
		Key:             "social_insurance",
		Label:           "Social Insurance",
		Table:           "sys_social_insurance",
		NaturalKey:      "name",
		DisplayName:     "name",
		PeriodField:     "yearMonth",
		CreateIfMissing: true,
		OnExisting:      core.ExistingUpdate,
		Fields: []core.FieldSpec{
			personName(),
			yearMonth(),
			money("personalMedical", "个人医疗"),
			money("personalPension", "个人养老"),
			money("personalUnemployment", "个人失业"),
			personal,
			money("companyMedical", "公司医疗"),
			money("companyPension", "公司养老"),
			money("companyUnemployment", "公司失业"),
			money("companyInjury", "公司工伤"),
			company,
			grand,
			{Name: "remark", Column: "备注"},
		},
	})
}

func registerAttendanceDeduction() {
	core.Register(core.EntitySchema{
		Key:             "attendance_deduction",
		Label:           "Attendance Deductions",
		Table:           "sys_attendance_deduction",
		NaturalKey:      "name",
		DisplayName:     "name",
		PeriodField:     "yearMonth",
		CreateIfMissing: true,
		OnExisting:      core.ExistingUpdate,
		Fields: []core.FieldSpec{
			personName(),
			yearMonth(),
			money("attendanceDeduction", "考勤扣款"),
			money("fullAttendanceBonus", "全勤奖励"),
			{Name: "remark", Column: "备注"},
		},
	})
}

func registerDeposit() {
	name := personName()
	name.Required = true

	core.Register(core.EntitySchema{
		Key:             "deposit",
		Label:           "Deposits",
		Table:           "sys_deposit",
		NaturalKey:      "name",
		DisplayName:     "name",
		PeriodField:     "deductionDate",
		CreateIfMissing: true,
		OnExisting:      core.ExistingUpdate,
		Fields: []core.FieldSpec{
			name,
			{Name: "amount", Column: "保证金扣除", Type: core.FieldNumeric, Required: true, RequiredColumn: true},
			{Name: "deductionDate", Column: "扣除日期", Type: core.FieldDate, Required: true, RequiredColumn: true},
			{Name: "remark", Column: "备注"},
		},
	})
}

func registerFriendCirclePayment() {
	week := func(name, column string) core.FieldSpec {
		return core.FieldSpec{
			Name:           name,
			Column:         column,
			Type:           core.FieldNumeric,
			RequiredColumn: true,
			DefaultZero:    true,
			Check:          NonNegative,
		}
	}

	total := money("totalCount", "总数")
	total.Policy = core.MergeDerivedSum
	total.Components = []string{"weekOne", "weekTwo", "weekThree", "weekFour"}

	core.Register(core.EntitySchema{
		Key:             "friend_circle_payment",
		Label:           "Friend Circle Payments",
		Table:           "sys_friend_circle_payment",
		NaturalKey:      "name",
		DisplayName:     "name",
		PeriodField:     "yearMonth",
		CreateIfMissing: true,
		OnExisting:      core.ExistingUpdate,
		Fields: []core.FieldSpec{
			personName(),
			week("weekOne", "第一周"),
			week("weekTwo", "第二周"),
			week("weekThree", "第三周"),
			week("weekFour", "第四周"),
			total,
			{Name: "payment", Column: "扣款", Type: core.FieldNumeric, RequiredColumn: true, DefaultZero: true},
			{Name: "isCompleted", Column: "是否完成", Type: core.FieldBool, RequiredColumn: true},
			{Name: "yearMonth", Column: "年月", Aliases: []string{"月份", "所属月份"}, Type: core.FieldPeriod},
		},
	})
}
