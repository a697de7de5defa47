package tables

import (
	"github.com/JonMunkholm/reconcile/internal/core"
)

func init() {
	registerCustomer()
	registerCustomerUpdate()
	registerCustomerStatus()
	registerCustomerLicense()
}

const customerTable = "sys_customer"

// customerAudit records staffing and status changes in the service history.
func customerAudit() *core.AuditSpec {
	return &core.AuditSpec{
		Table: "sys_service_history",
		KeyFields: []string{
			"consultantAccountant",
			"bookkeepingAccountant",
			"invoiceOfficer",
			"enterpriseStatus",
			"businessStatus",
		},
	}
}

// customerFields is the full customer profile column set.
func customerFields() []core.FieldSpec {
	return []core.FieldSpec{
		// Identity and staffing
		{Name: "companyName", Column: "企业名称", Aliases: []string{"公司名称"}, Required: true, RequiredColumn: true, Normalizer: NormalizeName},
		{Name: "location", Column: "归属地"},
		{Name: "consultantAccountant", Column: "顾问会计", Normalizer: NormalizeName},
		{Name: "bookkeepingAccountant", Column: "记账会计", Normalizer: NormalizeName},
		{Name: "invoiceOfficer", Column: "开票员", Normalizer: NormalizeName},
		{Name: "enterpriseType", Column: "企业类型"},
		{Name: "unifiedSocialCreditCode", Column: "统一社会信用代码", Aliases: []string{"信用代码"}, RequiredColumn: true, Normalizer: NormalizeCreditCode},
		{Name: "taxNumber", Column: "税号", Normalizer: NormalizeCreditCode},

		// Addresses and profile
		{Name: "registeredAddress", Column: "注册地址"},
		{Name: "businessAddress", Column: "实际经营地址"},
		{Name: "taxBureau", Column: "所属分局"},
		{Name: "actualResponsibleRemark", Column: "实际负责人(备注)", Aliases: []string{"实际负责人（备注）", "实际负责人"}},
		{Name: "affiliatedEnterprises", Column: "同宗企业"},
		{Name: "bossProfile", Column: "老板画像"},
		{Name: "enterpriseProfile", Column: "企业画像"},
		{Name: "industryCategory", Column: "行业大类"},
		{Name: "industrySubcategory", Column: "行业细分"},

		// Registration
		{Name: "hasTaxBenefits", Column: "是否有税收优惠", Type: core.FieldBool},
		{Name: "businessPublicationPassword", Column: "工商公示密码"},
		{Name: "establishmentDate", Column: "成立日期", Type: core.FieldDate},
		{Name: "licenseExpiryDate", Column: "营业执照期限", Type: core.FieldDate},
		{Name: "registeredCapital", Column: "注册资金", Type: core.FieldNumeric},
		{Name: "capitalContributionDeadline", Column: "认缴到期日期", Type: core.FieldDate},
		{Name: "capitalContributionDeadline2", Column: "认缴到期日期2", Type: core.FieldDate},

		// Banking
		{Name: "publicBank", Column: "对公开户行"},
		{Name: "bankAccountNumber", Column: "开户行账号", Normalizer: NormalizeAccountNumber},
		{Name: "basicDepositAccountNumber", Column: "基本存款账户编号"},
		{Name: "generalAccountBank", Column: "一般户开户行"},
		{Name: "generalAccountNumber", Column: "一般户账号", Normalizer: NormalizeAccountNumber},
		{Name: "generalAccountOpeningDate", Column: "一般户开户时间", Type: core.FieldDate},
		{Name: "publicBankOpeningDate", Column: "对公开户时间", Type: core.FieldDate},
		{Name: "onlineBankingArchiveNumber", Column: "网银托管档案号"},
		{Name: "taxReportLoginMethod", Column: "报税登录方式"},

		// Legal representative
		{Name: "legalRepresentativeName", Column: "法人姓名", Normalizer: NormalizeName},
		{Name: "legalRepresentativePhone", Column: "法人电话", Normalizer: NormalizePhone},
		{Name: "legalRepresentativePhone2", Column: "法人电话2", Normalizer: NormalizePhone},
		{Name: "legalRepresentativeId", Column: "法人身份证号", Normalizer: NormalizeCreditCode},
		{Name: "legalRepresentativeTaxPassword", Column: "法人税务密码"},

		// Tax officer
		{Name: "taxOfficerName", Column: "办税员", Normalizer: NormalizeName},
		{Name: "taxOfficerPhone", Column: "办税员电话", Normalizer: NormalizePhone},
		{Name: "taxOfficerId", Column: "办税员身份证号", Normalizer: NormalizeCreditCode},
		{Name: "taxOfficerTaxPassword", Column: "办税员税务密码"},

		// Invoicing
		{Name: "invoicingSoftware", Column: "开票软件"},
		{Name: "invoicingNotes", Column: "开票注意事项"},
		{Name: "invoiceOfficerName", Column: "开票员姓名", Normalizer: NormalizeName},
		{Name: "invoiceOfficerPhone", Column: "开票员电话", Normalizer: NormalizePhone},
		{Name: "invoiceOfficerId", Column: "开票员身份证号", Normalizer: NormalizeCreditCode},
		{Name: "invoiceOfficerTaxPassword", Column: "开票员税务密码"},

		// Finance contact
		{Name: "financialContactName", Column: "财务负责人", Normalizer: NormalizeName},
		{Name: "financialContactPhone", Column: "财务负责人电话", Normalizer: NormalizePhone},
		{Name: "financialContactId", Column: "财务负责人身份证号", Normalizer: NormalizeCreditCode},
		{Name: "financialContactTaxPassword", Column: "财务负责人税务密码"},

		// Tax and social insurance
		{Name: "taxCategories", Column: "税种"},
		{Name: "socialInsuranceTypes", Column: "社保险种"},
		{Name: "insuredPersonnel", Column: "参保人员"},
		{Name: "tripartiteAgreementAccount", Column: "三方协议扣款账户", Normalizer: NormalizeAccountNumber},
		{Name: "personalIncomeTaxPassword", Column: "个税密码"},
		{Name: "personalIncomeTaxStaff", Column: "个税申报人员"},

		// Archives
		{Name: "paperArchiveNumber", Column: "纸质资料档案编号"},
		{Name: "onlineBankingStorageNumber", Column: "网银托管存放编号"},
		{Name: "archiveStorageRemarks", Column: "档案存放备注"},
		{Name: "sealStorageNumber", Column: "章存放编号"},

		// Status
		{Name: "enterpriseStatus", Column: "企业状态"},
		{Name: "customerLevel", Column: "客户分级"},
		{Name: "businessStatus", Column: "业务状态"},
		{Name: "remarks", Column: "备注信息", Aliases: []string{"备注"}},
	}
}

// registerCustomer registers the initial customer load. Existing customers
// are reported as duplicates and left untouched.
func registerCustomer() {
	core.Register(core.EntitySchema{
		Key:             "customer",
		Label:           "Customers",
		Table:           customerTable,
		NaturalKey:      "unifiedSocialCreditCode",
		DisplayName:     "companyName",
		CreateIfMissing: true,
		OnExisting:      core.ExistingSkip,
		Fields:          customerFields(),
		Audit:           customerAudit(),
	})
}

// registerCustomerUpdate registers the partial profile update. Only
// non-blank cells are written; unknown credit codes are rejected.
func registerCustomerUpdate() {
	fields := customerFields()
	for i := range fields {
		switch fields[i].Name {
		case "companyName":
			// Renames are allowed but the column is optional.
			fields[i].Required = false
			fields[i].RequiredColumn = false
		case "unifiedSocialCreditCode":
			fields[i].Required = true
		}
	}

	core.Register(core.EntitySchema{
		Key:             "customer_update",
		Label:           "Customer Updates",
		Table:           customerTable,
		NaturalKey:      "unifiedSocialCreditCode",
		DisplayName:     "companyName",
		CreateIfMissing: false,
		OnExisting:      core.ExistingUpdate,
		Fields:          fields,
		Audit:           customerAudit(),
	})
}

// registerCustomerStatus registers the status-only update keyed by company
// name.
func registerCustomerStatus() {
	core.Register(core.EntitySchema{
		Key:             "customer_status",
		Label:           "Customer Status",
		Table:           customerTable,
		NaturalKey:      "companyName",
		DisplayName:     "companyName",
		CreateIfMissing: false,
		OnExisting:      core.ExistingUpdate,
		Fields: []core.FieldSpec{
			{Name: "companyName", Column: "企业名称", Aliases: []string{"公司名称"}, RequiredColumn: true, Normalizer: NormalizeName},
			{Name: "enterpriseStatus", Column: "企业状态"},
			{Name: "businessStatus", Column: "业务状态"},
		},
		RequireAnyColumn: []string{"enterpriseStatus", "businessStatus"},
		Audit: &core.AuditSpec{
			Table:     "sys_service_history",
			KeyFields: []string{"enterpriseStatus", "businessStatus"},
		},
	})
}

// registerCustomerLicense registers the administrative-license import.
// Contacts and licenses accumulate in list fields on the customer.
func registerCustomerLicense() {
	core.Register(core.EntitySchema{
		Key:             "customer_license",
		Label:           "Administrative Licenses",
		Table:           customerTable,
		NaturalKey:      "companyName",
		DisplayName:     "companyName",
		CreateIfMissing: true,
		OnExisting:      core.ExistingUpdate,
		Fields: []core.FieldSpec{
			{Name: "companyName", Column: "企业名称", Aliases: []string{"公司名称"}, Required: true, RequiredColumn: true, Normalizer: NormalizeName},

			{Name: "contactName", Column: "企业联系人姓名", List: "actualResponsibles", Member: "name", Normalizer: NormalizeName},
			{Name: "contactPhone", Column: "联系电话", List: "actualResponsibles", Member: "phone", Normalizer: NormalizePhone},

			{Name: "licenseType", Column: "行政许可类型", Required: true, RequiredColumn: true, List: "administrativeLicense"},
			{Name: "licenseStartDate", Column: "行政许可开始日期", Type: core.FieldDate, List: "administrativeLicense", Member: "startDate"},
			{Name: "licenseExpiryDate", Column: "行政许可到期日期", Type: core.FieldDate, List: "administrativeLicense", Member: "expiryDate"},
			{Name: "lastChargeAmount", Column: "上次收费金额", List: "administrativeLicense"},
			{Name: "licenseRemarks", Column: "备注", List: "administrativeLicense", Member: "remarks"},
		},
		Lists: []core.ListSpec{
			{
				Name:     "actualResponsibles",
				Policy:   core.MergeAppendDedup,
				DedupKey: []string{"name", "phone"},
			},
			{
				Name:     "administrativeLicense",
				Policy:   core.MergeAppendOnly,
				Defaults: core.SubRecord{"images": map[string]any{}},
			},
		},
	})
}
